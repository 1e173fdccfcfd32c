// Copyright 2013 The Prometheus Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/uber/statsrelay/pkg/config"
)

// ErrEmptySourceObject reports that an object-storage fetch returned no
// body. Per spec.md §7, this is treated as a FetchError.
var ErrEmptySourceObject = errors.New("discovery: source object had no data")

// discoveryFile is the on-disk/on-object JSON schema for both source kinds
// (spec.md §6 "Discovery file format").
type discoveryFile struct {
	Hosts []string `json:"hosts"`
}

// source is implemented by the two discovery source kinds, static_file and
// s3. newSource's switch over the configured type is the one place that
// picks between them; any other type is rejected there.
type source interface {
	fetch(ctx context.Context) (Update, error)
	transforms() []config.Transform
}

// newSource builds the concrete source for one configured entry.
func newSource(cfg config.DiscoverySource) (source, error) {
	switch cfg.Type {
	case "static_file":
		return &staticFileSource{path: cfg.Path, trans: cfg.Transforms}, nil
	case "s3":
		client, err := newS3Client(context.Background())
		if err != nil {
			return nil, fmt.Errorf("building s3 client: %w", err)
		}
		return &objectStorageSource{
			bucket: cfg.Bucket,
			key:    cfg.Key,
			client: client,
			trans:  cfg.Transforms,
		}, nil
	default:
		return nil, fmt.Errorf("unknown discovery source type %q", cfg.Type)
	}
}

type staticFileSource struct {
	path  string
	trans []config.Transform
}

func (s *staticFileSource) transforms() []config.Transform { return s.trans }

func (s *staticFileSource) fetch(_ context.Context) (Update, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return Update{}, err
	}
	var f discoveryFile
	if err := json.Unmarshal(data, &f); err != nil {
		return Update{}, err
	}
	return Update{Hosts: f.Hosts}, nil
}

// s3GetObjectAPI is the subset of *s3.Client this package calls, so tests can
// substitute a fake without a real AWS endpoint.
type s3GetObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type objectStorageSource struct {
	bucket string
	key    string
	client s3GetObjectAPI
	trans  []config.Transform
}

func (s *objectStorageSource) transforms() []config.Transform { return s.trans }

// fetch mirrors original_source/src/discovery.rs's poll_s3_source: a plain
// GetObject call, decoded as the same {"hosts": [...]} schema as the static
// file source.
func (s *objectStorageSource) fetch(ctx context.Context) (Update, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return Update{}, err
	}
	if out.Body == nil {
		return Update{}, ErrEmptySourceObject
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return Update{}, err
	}
	if len(data) == 0 {
		return Update{}, ErrEmptySourceObject
	}
	var f discoveryFile
	if err := json.Unmarshal(data, &f); err != nil {
		return Update{}, err
	}
	return Update{Hosts: f.Hosts}, nil
}

func newS3Client(ctx context.Context) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(cfg), nil
}
