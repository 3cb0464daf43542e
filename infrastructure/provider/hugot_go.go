//go:build !ORT

package provider

import "github.com/knights-analytics/hugot"

// newHugotSession builds the pure-Go inference session. Builds tagged
// ORT use the ONNX Runtime session instead, which is faster but needs
// the shared library installed.
func newHugotSession() (*hugot.Session, error) {
	return hugot.NewGoSession()
}
