//go:build production

package auth

// DemoBuildEnabled is false in production builds; demo tokens are always
// verified as signed tokens and therefore rejected.
const DemoBuildEnabled = false
