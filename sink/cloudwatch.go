package sink

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/vespa-engine/metrics-emitter/metrics"
)

// CloudWatchAPI is the subset of the CloudWatch client used by the sink.
type CloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchSink publishes each batch as one PutMetricData call.
type CloudWatchSink struct {
	client CloudWatchAPI
}

// NewCloudWatchSink creates a CloudWatch sink using the default AWS credential
// chain. An empty region leaves the region to the environment.
func NewCloudWatchSink(ctx context.Context, region string) (*CloudWatchSink, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	return &CloudWatchSink{
		client: cloudwatch.NewFromConfig(awsCfg),
	}, nil
}

func (s *CloudWatchSink) Name() string {
	return "cloudwatch"
}

// PublishBatch maps the batch to metric data entries one-to-one, in order,
// and sends them under the namespace.
func (s *CloudWatchSink) PublishBatch(ctx context.Context, batch []metrics.Point, namespace string) error {
	data := make([]types.MetricDatum, 0, len(batch))
	for _, point := range batch {
		dimensions := make([]types.Dimension, 0, len(point.Dimensions))
		for _, d := range point.Dimensions {
			dimensions = append(dimensions, types.Dimension{
				Name:  aws.String(d.Name),
				Value: aws.String(d.Value),
			})
		}

		data = append(data, types.MetricDatum{
			MetricName: aws.String(point.MetricName),
			Value:      aws.Float64(point.Value),
			Unit:       types.StandardUnit(point.Unit),
			Dimensions: dimensions,
		})
	}

	_, err := s.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(namespace),
		MetricData: data,
	})
	if err != nil {
		return fmt.Errorf("failed to put metric data: %w", err)
	}

	return nil
}

func (s *CloudWatchSink) Close() error {
	return nil
}

var _ Sink = (*CloudWatchSink)(nil)
