// Package awscloud is the reference ProviderConnector, built on the AWS
// SDK v2. It lists EC2 instances, RDS instances and S3 buckets and maps
// them to the registry's universal kinds.
package awscloud

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/finopskit/kosten/connector"
	"github.com/finopskit/kosten/types"
)

const (
	defaultPageSize    = 100
	defaultCallTimeout = 30 * time.Second
)

// EC2Client is the narrow slice of the EC2 API the connector uses.
type EC2Client interface {
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
}

// RDSClient is the narrow slice of the RDS API the connector uses.
type RDSClient interface {
	DescribeDBInstances(ctx context.Context, params *rds.DescribeDBInstancesInput, optFns ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error)
}

// S3Client is the narrow slice of the S3 API the connector uses.
type S3Client interface {
	ListBuckets(ctx context.Context, params *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
}

// Connector implements connector.Connector for one AWS account/region.
type Connector struct {
	ec2Client   EC2Client
	rdsClient   RDSClient
	s3Client    S3Client
	region      string
	pageSize    int32
	callTimeout time.Duration
}

func init() {
	connector.Register("aws", func(ctx context.Context, conn types.ProviderConnection) (connector.Connector, error) {
		return NewConnector(ctx, conn.Region)
	})
}

// NewConnector builds a connector from the ambient AWS credential chain.
func NewConnector(ctx context.Context, region string) (*Connector, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, connector.Unauthorized("load_config", err)
	}
	return &Connector{
		ec2Client:   ec2.NewFromConfig(cfg),
		rdsClient:   rds.NewFromConfig(cfg),
		s3Client:    s3.NewFromConfig(cfg),
		region:      region,
		pageSize:    defaultPageSize,
		callTimeout: defaultCallTimeout,
	}, nil
}

// NewConnectorWithClients wires explicit clients, for tests.
func NewConnectorWithClients(ec2c EC2Client, rdsc RDSClient, s3c S3Client, region string) *Connector {
	return &Connector{
		ec2Client:   ec2c,
		rdsClient:   rdsc,
		s3Client:    s3c,
		region:      region,
		pageSize:    defaultPageSize,
		callTimeout: defaultCallTimeout,
	}
}

// Name implements connector.Connector.
func (c *Connector) Name() string { return "aws" }

// Capabilities implements connector.Connector. The describe APIs cannot
// serve deltas, so every sync is a full snapshot.
func (c *Connector) Capabilities() []connector.Capability {
	return []connector.Capability{connector.CapListResources}
}

// phase walks the services in a fixed order so a cursor taken mid-listing
// restarts at the same position.
type phase string

const (
	phaseEC2  phase = "ec2"
	phaseRDS  phase = "rds"
	phaseS3   phase = "s3"
	phaseDone phase = "done"
)

// cursorToken is the opaque pagination state handed back to callers.
type cursorToken struct {
	Phase phase  `json:"phase"`
	Token string `json:"token,omitempty"`
}

func encodeCursor(t cursorToken) string {
	raw, _ := json.Marshal(t)
	return base64.RawURLEncoding.EncodeToString(raw)
}

func decodeCursor(s string) (cursorToken, error) {
	if s == "" {
		return cursorToken{Phase: phaseEC2}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return cursorToken{}, fmt.Errorf("decode cursor: %w", err)
	}
	var t cursorToken
	if err := json.Unmarshal(raw, &t); err != nil {
		return cursorToken{}, fmt.Errorf("parse cursor: %w", err)
	}
	return t, nil
}

// ListResources implements connector.Connector.
func (c *Connector) ListResources(ctx context.Context, cursor string) (*connector.Page, error) {
	token, err := decodeCursor(cursor)
	if err != nil {
		return nil, connector.Transient("list_resources", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	switch token.Phase {
	case phaseEC2:
		return c.listInstancesPage(ctx, token.Token)
	case phaseRDS:
		return c.listDatabasesPage(ctx, token.Token)
	case phaseS3:
		return c.listBucketsPage(ctx)
	case phaseDone:
		return &connector.Page{HasMore: false}, nil
	default:
		return nil, connector.Transient("list_resources", fmt.Errorf("unknown cursor phase %q", token.Phase))
	}
}
