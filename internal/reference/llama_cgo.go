//go:build llama

package reference

// Link against libllama.so next to the binary: rpath $ORIGIN at run time,
// ./bin at link time.
/*
#cgo LDFLAGS: -Wl,-rpath,'$ORIGIN' -L${SRCDIR}/../../bin -lllama
*/
import "C"
