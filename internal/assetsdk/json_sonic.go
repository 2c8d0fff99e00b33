//go:build sonic

package assetsdk

import (
	"github.com/bytedance/sonic"
)

// for imroc/req
var jsonMarshal = sonic.Marshal
var jsonUmarshal = sonic.Unmarshal
