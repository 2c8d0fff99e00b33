package serve

import (
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strconv"
	"strings"

	_ "embed"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/openmined/assetsync/internal/assets"
	"github.com/openmined/assetsync/internal/server/handlers/api"
	"github.com/openmined/assetsync/internal/server/store"
)

//go:embed index.html.tmpl
var indexTmpl string

// preferred first
var encodingPreference = []string{assets.EncodingBrotli, assets.EncodingGzip, assets.EncodingIdentity}

type ServeHandler struct {
	store    *store.AssetStore
	tplIndex *template.Template
}

func New(store *store.AssetStore) *ServeHandler {
	funcMap := template.FuncMap{
		"join": strings.Join,
		"humanizeSize": func(size int64) string {
			return humanize.Bytes(uint64(size))
		},
	}

	return &ServeHandler{
		store:    store,
		tplIndex: template.Must(template.New("index").Funcs(funcMap).Parse(indexTmpl)),
	}
}

// Serve answers GET and HEAD for committed assets
func (h *ServeHandler) Serve(ctx *gin.Context) {
	path := ctx.Param("key")

	asset, err := h.store.Resolve(ctx.Request.Context(), path)
	if errors.Is(err, assets.ErrAssetNotFound) {
		api.AbortWithError(ctx, http.StatusNotFound, api.CodeAssetNotFound, fmt.Errorf("no asset at %s", path))
		return
	} else if err != nil {
		api.AbortWithStoreError(ctx, err)
		return
	}

	encoding, ok := negotiate(ctx.GetHeader("Accept-Encoding"), asset.Encodings)
	if !ok {
		api.AbortWithError(ctx, http.StatusNotAcceptable, api.CodeInvalidRequest,
			fmt.Errorf("%s has no encoding acceptable to the client", asset.Key))
		return
	}
	enc := asset.Encodings[encoding]

	etag := strconv.Quote(enc.SHA256.String())
	header := ctx.Writer.Header()
	for name, value := range asset.Properties.Headers {
		header.Set(name, value)
	}
	header.Set("Content-Type", asset.Properties.ContentType)
	header.Set("ETag", etag)
	header.Add("Vary", "Accept-Encoding")
	if encoding != assets.EncodingIdentity {
		header.Set("Content-Encoding", encoding)
	}
	if asset.Properties.MaxAge != nil {
		header.Set("Cache-Control", "public, max-age="+strconv.FormatUint(*asset.Properties.MaxAge, 10))
	}

	if match := ctx.GetHeader("If-None-Match"); match != "" && match == etag {
		ctx.Status(http.StatusNotModified)
		return
	}

	if ctx.Request.Method == http.MethodHead {
		header.Set("Content-Length", strconv.FormatInt(enc.Length, 10))
		ctx.Status(http.StatusOK)
		return
	}

	content, err := h.store.Content(ctx.Request.Context(), enc)
	if err != nil {
		slog.Error("asset content missing", "key", asset.Key, "encoding", encoding, "error", err)
		api.AbortWithError(ctx, http.StatusInternalServerError, api.CodeInternalError, errors.New("asset content unavailable"))
		return
	}

	ctx.Data(http.StatusOK, asset.Properties.ContentType, content)
}

// Index renders a listing of every committed asset
func (h *ServeHandler) Index(ctx *gin.Context) {
	reqCtx := ctx.Request.Context()
	keys, err := h.store.List(reqCtx)
	if err != nil {
		api.AbortWithStoreError(ctx, err)
		return
	}

	data := indexData{Assets: make([]*indexEntry, 0, len(keys))}
	for _, key := range keys {
		asset, err := h.store.Get(reqCtx, key)
		if err != nil {
			// deleted between list and get
			continue
		}
		entry := &indexEntry{
			Key:         key,
			ContentType: asset.Properties.ContentType,
			Encodings:   slices.Sorted(maps.Keys(asset.Encodings)),
		}
		if id, ok := asset.Encodings[assets.EncodingIdentity]; ok {
			entry.Size = id.Length
		}
		data.TotalSize += entry.Size
		data.Assets = append(data.Assets, entry)
	}

	ctx.Header("Content-Type", "text/html; charset=utf-8")
	ctx.Status(http.StatusOK)
	if err := h.tplIndex.Execute(ctx.Writer, data); err != nil {
		slog.Error("failed to execute index template", "error", err)
	}
}

// negotiate picks the most preferred stored encoding the client accepts.
// Identity is acceptable unless explicitly refused.
func negotiate(acceptEncoding string, available map[string]store.EncodingInfo) (string, bool) {
	accepted := parseAcceptEncoding(acceptEncoding)
	for _, name := range encodingPreference {
		if _, ok := available[name]; !ok {
			continue
		}
		q, listed := accepted[name]
		if !listed {
			q, listed = accepted["*"]
		}
		switch {
		case listed && q > 0:
			return name, true
		case !listed && name == assets.EncodingIdentity:
			return name, true
		}
	}
	return "", false
}

func parseAcceptEncoding(header string) map[string]float64 {
	out := make(map[string]float64)
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, params, _ := strings.Cut(part, ";")
		q := 1.0
		if v, ok := strings.CutPrefix(strings.TrimSpace(params), "q="); ok {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				q = parsed
			}
		}
		out[strings.ToLower(strings.TrimSpace(name))] = q
	}
	return out
}
