//go:build !(darwin || linux) || novpx

package transcode

// IsVPXAvailable reports false on builds without libmedia_vpx support.
func IsVPXAvailable() bool { return false }

// IsVP8Available reports false on builds without libmedia_vpx support.
func IsVP8Available() bool { return false }

// IsVP9Available reports false on builds without libmedia_vpx support.
func IsVP9Available() bool { return false }
