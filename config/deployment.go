package config

import (
	"net"
	"strings"
)

// Deployment is the per-process choice between local development and the hosted service
type Deployment struct {
	IsLocal bool
	APIBase string
	// MediaBase is the blob base to use as a storage override. Empty means
	// storage mode is left to detection.
	MediaBase string
}

// ResolveDeployment picks the API and media bases for a client running on
// hostname with the given URL scheme. Loopback hosts and file: contexts are
// local; everything else talks to the hosted service and its blob storage.
func ResolveDeployment(cfg *Config, hostname, scheme string) Deployment {
	if IsLocalContext(hostname, scheme) {
		return Deployment{
			IsLocal:   true,
			APIBase:   strings.TrimRight(cfg.API.LocalBase, "/"),
			MediaBase: strings.TrimRight(cfg.Storage.MediaBaseOverride, "/"),
		}
	}
	return Deployment{
		IsLocal:   false,
		APIBase:   strings.TrimRight(cfg.API.HostedBase, "/"),
		MediaBase: strings.TrimRight(cfg.Storage.BlobBase, "/"),
	}
}

// IsLocalContext reports whether hostname is a loopback address or scheme is file
func IsLocalContext(hostname, scheme string) bool {
	if strings.EqualFold(strings.TrimSuffix(scheme, ":"), "file") {
		return true
	}

	host := strings.TrimSpace(hostname)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
