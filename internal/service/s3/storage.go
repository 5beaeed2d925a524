package s3

import (
	"errors"
	"mime"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// isNotFound распознает оба варианта ответа об отсутствии объекта:
// HeadObject возвращает NotFound, GetObject/DeleteObject возвращают NoSuchKey.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	return errors.As(err, &nf)
}

// contentDisposition builds the header value the presigned URL asks S3 to
// return, so the browser saves the file under its original name.
func contentDisposition(filename string) string {
	if filename == "" {
		return "attachment"
	}
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": filename}); v != "" {
		return v
	}
	return "attachment"
}
