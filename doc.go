// Package nclr implements an ICC-aware color preprocessor for archival-image
// digitization pipelines following the NDK (Czech National Digital Library)
// MC / UC-I / UC-II profiles.
//
// The pipeline decodes TIFF/PNG/JPEG sources into a canonical raster, resolves
// source and destination ICC profiles (including embedded-profile extraction
// from TIFF tag 34675 and JPEG APP2 ICC_PROFILE segments), applies the color
// transform in 16-bit precision, reduces bit depth with optional tone mapping
// and Floyd-Steinberg dithering, and writes a validator-clean baseline TIFF
// (or PNG/JPEG) with correct color metadata.
package nclr
