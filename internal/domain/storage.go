package domain

// StorageKind identifies which backend serves catalog images
type StorageKind string

const (
	StorageLocalBackend StorageKind = "local-backend"
	StorageBlobBackend  StorageKind = "blob-backend"
)

// StorageTypeAzureBlob is the storage_type value reported by /storage-info for blob storage
const StorageTypeAzureBlob = "azure_blob"

// StorageMode is the storage backend in effect for the session
type StorageMode struct {
	Kind StorageKind
	Base string
}

// BlobReady reports whether blob storage is selected with a usable base
func (m StorageMode) BlobReady() bool {
	return m.Kind == StorageBlobBackend && m.Base != ""
}

// StorageInfo is the /storage-info response body
type StorageInfo struct {
	StorageType string `json:"storage_type"`
	BlobURL     string `json:"blob_url,omitempty"`
}

// Mode converts the introspection response into a storage mode
func (i StorageInfo) Mode() StorageMode {
	if i.StorageType == StorageTypeAzureBlob {
		return StorageMode{Kind: StorageBlobBackend, Base: i.BlobURL}
	}
	return StorageMode{Kind: StorageLocalBackend}
}

// SampleImageDescriptor is a server-offered example image
type SampleImageDescriptor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Path string `json:"path"`
	URL  string `json:"url,omitempty"`
}
