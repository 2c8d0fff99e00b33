package serve

type indexEntry struct {
	Key         string
	ContentType string
	Encodings   []string
	Size        int64
}

type indexData struct {
	Assets    []*indexEntry
	TotalSize int64
}
