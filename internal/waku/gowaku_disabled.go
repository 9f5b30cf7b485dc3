//go:build !real_waku

package waku

// The go-waku backend is compiled in only with -tags real_waku.
func newGoWakuBackend() goWakuBackend {
	return nil
}
