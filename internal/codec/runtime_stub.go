//go:build !govips || !cgo

package codec

func Startup() error {
	return nil
}

func Shutdown() {}

// Default returns the codec selected at build time.
func Default() Codec {
	return Std{}
}

func Backend() string {
	return "stdlib"
}
