// Package common contains shared constants and sentinel errors used across
// chunkstore components.
package common

// AuthorizationHeaderName carries the submission token as "Bearer <jwt>".
const AuthorizationHeaderName = "Authorization"

// TokenQueryParam is the query-string fallback for the submission token,
// used by browser downloads that cannot set headers.
const TokenQueryParam = "token"

// MetadataFilePrefix prefixes the metadata record stored next to an
// assembled file.
const MetadataFilePrefix = "metadata_"
