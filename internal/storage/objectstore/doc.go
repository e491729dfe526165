// Package objectstore implements storage.Store on an S3 compatible bucket
// through minio-go. Each bundle occupies two objects under the configured
// prefix: <id>/index.html and <id>/meta.json.
package objectstore
