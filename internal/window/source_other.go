//go:build !linux && !darwin && !windows

package window

func platformSource(string) (Source, error) {
	return nil, ErrUnsupported
}
