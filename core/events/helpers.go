package events

import (
	"math/big"
	"strings"

	"cdpcore/crypto"
)

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func addressString(addr crypto.Address) string {
	if len(addr.Bytes()) == 0 {
		return ""
	}
	return addr.String()
}

func amountList(values []*big.Int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = amountString(v)
	}
	return strings.Join(parts, ",")
}
