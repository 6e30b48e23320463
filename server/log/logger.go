// Package log provides an abstraction over log.Logger so components share the logger configured by the server.
package log

// Logger is implemented by the standard *log.Logger.
// Components accept it rather than using the default logger of the log package.
type Logger interface {
	// Printf writes the formatted values to the logger in the manner of fmt.Printf.
	Printf(format string, v ...interface{})
}
