//go:build !sonic

package assetsdk

import (
	"github.com/goccy/go-json"
)

// for imroc/req
var jsonMarshal = json.Marshal
var jsonUmarshal = json.Unmarshal
