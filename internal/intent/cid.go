package intent

import (
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// ContentID returns the CIDv1 (raw, sha2-256) of a signed payload: the
// canonical payload bytes followed by the raw signature.
func ContentID(canonical, signature []byte) (string, error) {
	data := make([]byte, 0, len(canonical)+len(signature))
	data = append(data, canonical...)
	data = append(data, signature...)
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return "", err
	}
	return cid.NewCidV1(cid.Raw, sum).String(), nil
}
