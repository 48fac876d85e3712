package nkb

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// MirrorClient wraps the S3 client for the snapshot mirror bucket
// (Cloudflare R2 endpoints).
type MirrorClient struct {
	Client     *s3.Client
	BucketName string
}

// newMirrorClient initializes the mirror client from configuration values.
func newMirrorClient(cfg *Config) (*MirrorClient, error) {
	accountID := cfg.Values["R2_ACCOUNT_ID"]
	accessKey := cfg.Values["R2_ACCESS_KEY_ID"]
	secretKey := cfg.Values["R2_SECRET_ACCESS_KEY"]
	bucketName := cfg.Values["R2_BUCKET_NAME"]

	if accountID == "" || accessKey == "" || secretKey == "" || bucketName == "" {
		return nil, fmt.Errorf("mirror credentials missing in configuration (R2_ACCOUNT_ID, R2_ACCESS_KEY_ID, R2_SECRET_ACCESS_KEY, R2_BUCKET_NAME)")
	}

	r2Resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{
			URL: fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID),
		}, nil
	})

	options := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithEndpointResolverWithOptions(r2Resolver),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
		awsconfig.WithRegion("auto"),
	}

	if Debug {
		options = append(options, awsconfig.WithClientLogMode(aws.LogSigning|aws.LogRetries|aws.LogRequest|aws.LogResponse))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(), options...)
	if err != nil {
		return nil, fmt.Errorf("failed to load mirror config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	return &MirrorClient{
		Client:     client,
		BucketName: bucketName,
	}, nil
}

// UploadLocalFile uploads a file from disk to the mirror.
func (m *MirrorClient) UploadLocalFile(ctx context.Context, key, filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return err
	}

	contentType := "application/octet-stream"
	switch {
	case strings.HasSuffix(key, ".zst"):
		contentType = "application/zstd"
	case strings.HasSuffix(key, ".xz"):
		contentType = "application/x-xz"
	case strings.HasSuffix(key, ".b3"):
		contentType = "text/plain"
	}

	_, err = m.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.BucketName),
		Key:           aws.String(key),
		Body:          file,
		ContentLength: aws.Int64(stat.Size()),
		ContentType:   aws.String(contentType),
	})
	return err
}

// MirrorObject represents metadata for an object on the mirror.
type MirrorObject struct {
	Key  string
	Size int64
}

// ListObjects returns objects in the bucket with the given prefix.
func (m *MirrorClient) ListObjects(ctx context.Context, prefix string) ([]MirrorObject, error) {
	var objects []MirrorObject
	paginator := s3.NewListObjectsV2Paginator(m.Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(m.BucketName),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			objects = append(objects, MirrorObject{
				Key:  *obj.Key,
				Size: *obj.Size,
			})
		}
	}
	return objects, nil
}

// handleUploadCommand pushes local snapshot artifacts (and their .b3
// sidecars) to the mirror. Positional arguments filter by substring.
func handleUploadCommand(ctx context.Context, args []string, cfg *Config) error {
	uploadCmd := flag.NewFlagSet("upload", flag.ExitOnError)
	force := uploadCmd.Bool("force", false, "Re-upload artifacts already present on the mirror.")
	if err := uploadCmd.Parse(args); err != nil {
		return err
	}
	filters := uploadCmd.Args()

	client, err := newMirrorClient(cfg)
	if err != nil {
		return err
	}

	var files []string
	for _, pattern := range []string{
		filepath.Join(cfg.SnapshotDir, "config-*.tar.zst"),
		filepath.Join(cfg.SnapshotDir, "config-*.tar.zst.b3"),
		filepath.Join(cfg.SnapshotDir, "logs", "*.log.xz"),
	} {
		matches, _ := filepath.Glob(pattern)
		files = append(files, matches...)
	}

	if len(filters) > 0 {
		var kept []string
		for _, f := range files {
			for _, want := range filters {
				if strings.Contains(filepath.Base(f), want) {
					kept = append(kept, f)
					break
				}
			}
		}
		files = kept
	}

	if len(files) == 0 {
		colWarn.Println("Nothing to upload.")
		return nil
	}

	remote := make(map[string]int64)
	objects, err := client.ListObjects(ctx, "snapshots/")
	if err != nil {
		return fmt.Errorf("failed to list mirror objects: %w", err)
	}
	for _, obj := range objects {
		remote[obj.Key] = obj.Size
	}

	uploaded := 0
	for _, f := range files {
		key := "snapshots/" + filepath.Base(f)
		info, err := os.Stat(f)
		if err != nil {
			colWarn.Printf("Skipping %s: %v\n", f, err)
			continue
		}
		if size, ok := remote[key]; ok && size == info.Size() && !*force {
			debugf("already on mirror: %s\n", key)
			continue
		}

		colArrow.Print("-> ")
		fmt.Printf("Uploading %s (%d bytes)\n", key, info.Size())
		if err := client.UploadLocalFile(ctx, key, f); err != nil {
			return fmt.Errorf("failed to upload %s: %w", key, err)
		}
		uploaded++
	}

	colArrow.Print("-> ")
	colSuccess.Printf("Upload complete: %d artifact(s).\n", uploaded)
	return nil
}
