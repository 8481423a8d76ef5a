package awscloud

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/finopskit/kosten/connector"
	"github.com/finopskit/kosten/types"
)

// listInstancesPage fetches one page of EC2 instances. When EC2 is
// exhausted the cursor advances to the RDS phase.
func (c *Connector) listInstancesPage(ctx context.Context, token string) (*connector.Page, error) {
	input := &ec2.DescribeInstancesInput{MaxResults: aws.Int32(c.pageSize)}
	if token != "" {
		input.NextToken = aws.String(token)
	}

	output, err := c.ec2Client.DescribeInstances(ctx, input)
	if err != nil {
		return nil, classify("describe_instances", err)
	}

	var resources []types.RawResource
	for _, reservation := range output.Reservations {
		for _, instance := range reservation.Instances {
			resources = append(resources, c.instanceToRaw(instance))
		}
	}

	if output.NextToken != nil {
		return &connector.Page{
			Resources: resources,
			Cursor:    encodeCursor(cursorToken{Phase: phaseEC2, Token: aws.ToString(output.NextToken)}),
			HasMore:   true,
		}, nil
	}
	return &connector.Page{
		Resources: resources,
		Cursor:    encodeCursor(cursorToken{Phase: phaseRDS}),
		HasMore:   true,
	}, nil
}

func (c *Connector) instanceToRaw(instance ec2types.Instance) types.RawResource {
	tags := make(map[string]string, len(instance.Tags))
	name := ""
	for _, tag := range instance.Tags {
		key := aws.ToString(tag.Key)
		tags[key] = aws.ToString(tag.Value)
		if key == "Name" {
			name = aws.ToString(tag.Value)
		}
	}

	attrs := map[string]any{
		"instance_type": string(instance.InstanceType),
		"architecture":  string(instance.Architecture),
	}
	if instance.VpcId != nil {
		attrs["vpc_id"] = aws.ToString(instance.VpcId)
	}
	if instance.LaunchTime != nil {
		attrs["launch_time"] = instance.LaunchTime.UTC()
	}

	return types.RawResource{
		NativeID:   aws.ToString(instance.InstanceId),
		Kind:       types.KindCompute,
		Status:     instanceStatus(instance.State),
		Name:       name,
		Region:     c.region,
		Tags:       tags,
		Attributes: attrs,
	}
}

func instanceStatus(state *ec2types.InstanceState) types.ResourceStatus {
	if state == nil {
		return types.StatusUnknown
	}
	switch state.Name {
	case ec2types.InstanceStateNameRunning, ec2types.InstanceStateNamePending:
		return types.StatusActive
	case ec2types.InstanceStateNameStopped, ec2types.InstanceStateNameStopping:
		return types.StatusStopped
	case ec2types.InstanceStateNameTerminated, ec2types.InstanceStateNameShuttingDown:
		return types.StatusTerminated
	default:
		return types.StatusUnknown
	}
}

// listDatabasesPage fetches one page of RDS instances; when exhausted the
// cursor advances to the S3 phase.
func (c *Connector) listDatabasesPage(ctx context.Context, token string) (*connector.Page, error) {
	input := &rds.DescribeDBInstancesInput{MaxRecords: aws.Int32(c.pageSize)}
	if token != "" {
		input.Marker = aws.String(token)
	}

	output, err := c.rdsClient.DescribeDBInstances(ctx, input)
	if err != nil {
		return nil, classify("describe_db_instances", err)
	}

	resources := make([]types.RawResource, 0, len(output.DBInstances))
	for _, db := range output.DBInstances {
		tags := make(map[string]string, len(db.TagList))
		for _, tag := range db.TagList {
			tags[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
		}

		resources = append(resources, types.RawResource{
			NativeID: aws.ToString(db.DBInstanceIdentifier),
			Kind:     types.KindDatabase,
			Status:   databaseStatus(aws.ToString(db.DBInstanceStatus)),
			Name:     aws.ToString(db.DBInstanceIdentifier),
			Region:   c.region,
			Tags:     tags,
			Attributes: map[string]any{
				"engine":         aws.ToString(db.Engine),
				"engine_version": aws.ToString(db.EngineVersion),
				"instance_class": aws.ToString(db.DBInstanceClass),
				"multi_az":       aws.ToBool(db.MultiAZ),
			},
		})
	}

	if output.Marker != nil {
		return &connector.Page{
			Resources: resources,
			Cursor:    encodeCursor(cursorToken{Phase: phaseRDS, Token: aws.ToString(output.Marker)}),
			HasMore:   true,
		}, nil
	}
	return &connector.Page{
		Resources: resources,
		Cursor:    encodeCursor(cursorToken{Phase: phaseS3}),
		HasMore:   true,
	}, nil
}

func databaseStatus(status string) types.ResourceStatus {
	switch status {
	case "available", "backing-up", "modifying":
		return types.StatusActive
	case "stopped", "stopping":
		return types.StatusStopped
	case "deleting":
		return types.StatusTerminated
	default:
		return types.StatusUnknown
	}
}

// listBucketsPage lists S3 buckets. The API returns all buckets in one
// call, so this is the final page of the listing.
func (c *Connector) listBucketsPage(ctx context.Context) (*connector.Page, error) {
	output, err := c.s3Client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, classify("list_buckets", err)
	}

	resources := make([]types.RawResource, 0, len(output.Buckets))
	for _, bucket := range output.Buckets {
		attrs := map[string]any{}
		if bucket.CreationDate != nil {
			attrs["creation_date"] = bucket.CreationDate.UTC()
		}
		resources = append(resources, types.RawResource{
			NativeID:   aws.ToString(bucket.Name),
			Kind:       types.KindStorage,
			Status:     types.StatusActive,
			Name:       aws.ToString(bucket.Name),
			Region:     c.region,
			Attributes: attrs,
		})
	}

	return &connector.Page{Resources: resources, HasMore: false}, nil
}
