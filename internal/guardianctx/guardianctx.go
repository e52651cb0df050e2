// Package guardianctx loads the optional operator context document from S3.
// The document describes the account's workloads in the operators' own words
// and is handed verbatim to the language assistant; detection never reads it.
package guardianctx

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/costguard/costguard/internal/providers/aws/common"
)

// maxDocumentBytes bounds the context document so a runaway upload cannot
// blow the prompt budget.
const maxDocumentBytes = 64 * 1024

// Load fetches the document at bucket/key. An empty bucket disables the
// feature and a missing object degrades to no context; both return "".
func Load(ctx context.Context, client common.S3Client, bucket, key string) (string, error) {
	if bucket == "" || key == "" {
		return "", nil
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return "", nil
		}
		return "", fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, maxDocumentBytes))
	if err != nil {
		return "", fmt.Errorf("read s3://%s/%s: %w", bucket, key, err)
	}
	return string(data), nil
}
