package awscloud

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/stretchr/testify/require"

	"github.com/finopskit/kosten/connector"
	"github.com/finopskit/kosten/types"
)

type mockEC2 struct {
	output *ec2.DescribeInstancesOutput
	err    error
}

func (m *mockEC2) DescribeInstances(_ context.Context, _ *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	return m.output, m.err
}

type mockRDS struct {
	output *rds.DescribeDBInstancesOutput
	err    error
}

func (m *mockRDS) DescribeDBInstances(_ context.Context, _ *rds.DescribeDBInstancesInput, _ ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error) {
	return m.output, m.err
}

type mockS3 struct {
	output *s3.ListBucketsOutput
	err    error
}

func (m *mockS3) ListBuckets(_ context.Context, _ *s3.ListBucketsInput, _ ...func(*s3.Options)) (*s3.ListBucketsOutput, error) {
	return m.output, m.err
}

func TestCursorRoundTrip(t *testing.T) {
	original := cursorToken{Phase: phaseRDS, Token: "marker-123"}
	decoded, err := decodeCursor(encodeCursor(original))
	require.NoError(t, err)
	require.Equal(t, original, decoded)

	// Empty cursor starts at the EC2 phase.
	start, err := decodeCursor("")
	require.NoError(t, err)
	require.Equal(t, phaseEC2, start.Phase)
}

func TestListResources_WalksPhases(t *testing.T) {
	ec2c := &mockEC2{output: &ec2.DescribeInstancesOutput{
		Reservations: []ec2types.Reservation{{
			Instances: []ec2types.Instance{{
				InstanceId:   aws.String("i-001"),
				InstanceType: ec2types.InstanceTypeT3Micro,
				State:        &ec2types.InstanceState{Name: ec2types.InstanceStateNameRunning},
				Tags: []ec2types.Tag{
					{Key: aws.String("Name"), Value: aws.String("web-1")},
					{Key: aws.String("env"), Value: aws.String("prod")},
				},
			}},
		}},
	}}
	rdsc := &mockRDS{output: &rds.DescribeDBInstancesOutput{
		DBInstances: []rdstypes.DBInstance{{
			DBInstanceIdentifier: aws.String("db-main"),
			DBInstanceStatus:     aws.String("available"),
			Engine:               aws.String("postgres"),
		}},
	}}
	s3c := &mockS3{output: &s3.ListBucketsOutput{
		Buckets: []s3types.Bucket{{Name: aws.String("logs-bucket")}},
	}}

	c := NewConnectorWithClients(ec2c, rdsc, s3c, "eu-north-1")
	ctx := context.Background()

	var seen []types.RawResource
	_, err := connector.EachResource(ctx, c, "", func(r types.RawResource) error {
		seen = append(seen, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, seen, 3)

	require.Equal(t, "i-001", seen[0].NativeID)
	require.Equal(t, types.KindCompute, seen[0].Kind)
	require.Equal(t, types.StatusActive, seen[0].Status)
	require.Equal(t, "web-1", seen[0].Name)
	require.Equal(t, "prod", seen[0].Tags["env"])

	require.Equal(t, "db-main", seen[1].NativeID)
	require.Equal(t, types.KindDatabase, seen[1].Kind)

	require.Equal(t, "logs-bucket", seen[2].NativeID)
	require.Equal(t, types.KindStorage, seen[2].Kind)
}

func TestClassify(t *testing.T) {
	throttled := &smithy.GenericAPIError{Code: "Throttling", Message: "rate exceeded"}
	denied := &smithy.GenericAPIError{Code: "AccessDenied", Message: "no"}
	unknown := &smithy.GenericAPIError{Code: "InternalError", Message: "oops", Fault: smithy.FaultServer}

	require.Equal(t, connector.ClassRateLimited, connector.ClassOf(classify("op", throttled)))
	require.Equal(t, connector.ClassUnauthorized, connector.ClassOf(classify("op", denied)))
	require.Equal(t, connector.ClassTransient, connector.ClassOf(classify("op", unknown)))
	require.Equal(t, connector.ClassTransient, connector.ClassOf(classify("op", errors.New("dial tcp: timeout"))))
	require.Equal(t, connector.ClassTransient, connector.ClassOf(classify("op", context.DeadlineExceeded)))
}

func TestRetryAfterFrom(t *testing.T) {
	resp := &smithyhttp.Response{Response: &http.Response{Header: http.Header{}}}
	resp.Header.Set("Retry-After", "17")
	err := &smithyhttp.ResponseError{Response: resp, Err: errors.New("throttled")}

	require.Equal(t, 17, int(retryAfterFrom(err).Seconds()))
	require.Zero(t, retryAfterFrom(errors.New("no response")))
}

func TestListResources_PropagatesClassifiedError(t *testing.T) {
	ec2c := &mockEC2{err: &smithy.GenericAPIError{Code: "AuthFailure", Message: "bad creds"}}
	c := NewConnectorWithClients(ec2c, &mockRDS{}, &mockS3{}, "eu-north-1")

	_, err := c.ListResources(context.Background(), "")
	require.Error(t, err)
	require.Equal(t, connector.ClassUnauthorized, connector.ClassOf(err))
}
