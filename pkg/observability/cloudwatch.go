package observability

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"
)

// CloudWatchAPI is the part of the CloudWatch client the recorder uses.
type CloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchRecorder publishes intent and query metrics from Lambda
// functions, where there is no long-lived process to scrape.
type CloudWatchRecorder struct {
	namespace string
	client    CloudWatchAPI
	logger    *zap.Logger
	timeout   time.Duration
}

func NewCloudWatchRecorder(namespace string, client CloudWatchAPI, logger *zap.Logger) *CloudWatchRecorder {
	return &CloudWatchRecorder{
		namespace: namespace,
		client:    client,
		logger:    logger,
		timeout:   2 * time.Second,
	}
}

func (r *CloudWatchRecorder) RecordIntent(intent, status string, d time.Duration) {
	r.put("Intent", []types.Dimension{
		{Name: aws.String("Intent"), Value: aws.String(intent)},
		{Name: aws.String("Status"), Value: aws.String(status)},
	}, d)
}

func (r *CloudWatchRecorder) RecordQuery(query string, failed bool, d time.Duration) {
	status := "ok"
	if failed {
		status = "failed"
	}
	r.put("Query", []types.Dimension{
		{Name: aws.String("Query"), Value: aws.String(query)},
		{Name: aws.String("Status"), Value: aws.String(status)},
	}, d)
}

func (r *CloudWatchRecorder) put(prefix string, dims []types.Dimension, d time.Duration) {
	if r.client == nil {
		return
	}
	now := time.Now()
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(r.namespace),
		MetricData: []types.MetricDatum{
			{
				MetricName: aws.String(prefix + "Count"),
				Dimensions: dims,
				Value:      aws.Float64(1),
				Unit:       types.StandardUnitCount,
				Timestamp:  aws.Time(now),
			},
			{
				MetricName: aws.String(prefix + "Latency"),
				Dimensions: dims,
				Value:      aws.Float64(float64(d.Milliseconds())),
				Unit:       types.StandardUnitMilliseconds,
				Timestamp:  aws.Time(now),
			},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if _, err := r.client.PutMetricData(ctx, input); err != nil {
		r.logger.Warn("Failed to send metrics", zap.String("metric", prefix), zap.Error(err))
	}
}
