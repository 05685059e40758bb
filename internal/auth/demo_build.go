//go:build !production

package auth

// DemoBuildEnabled reports whether this binary may honour demo tokens at all.
// Release builds pass -tags production, which compiles the bypass out.
const DemoBuildEnabled = true
