package metrics

import (
	"context"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"opsflow/logger"
)

type cloudWatchState struct {
	client    *cloudwatch.Client
	namespace string
	region    string
}

var cwState atomic.Pointer[cloudWatchState]

func init() {
	cwState.Store(&cloudWatchState{namespace: "OpsFlow"})
}

// InitCloudWatch initialises the CloudWatch client using the provided region
// and namespace. When the client cannot be created the function logs a
// warning and leaves publishing disabled.
func InitCloudWatch(region, namespace string) {
	log := logger.GetLogger().WithComponent("cloudwatch")

	if region == "" {
		region = os.Getenv("AWS_REGION")
	}

	ctx := context.Background()
	opts := []func(*config.LoadOptions) error{}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		log.WithError(err).Warn("failed to load AWS configuration; CloudWatch metrics disabled")
		return
	}

	current := cwState.Load()
	state := cloudWatchState{}
	if current != nil {
		state = *current
	}

	state.client = cloudwatch.NewFromConfig(cfg)
	if namespace != "" {
		state.namespace = namespace
	}
	if cfg.Region != "" {
		state.region = cfg.Region
	} else {
		state.region = region
	}

	cwState.Store(&state)

	log.WithFields(logger.Fields{
		"region":    state.region,
		"namespace": state.namespace,
	}).Info("initialized CloudWatch client")
}

// Snapshot carries the per-interval counters the publisher ships to
// CloudWatch. It is filled by the session from transport and poller stats.
type Snapshot struct {
	FramesTotal     int64
	ReconnectsTotal int64
	DroppedFrames   int64
	DecodeFallbacks int64
	Connected       bool
	DataMode        string
}

// PublishSnapshot ships the given counters to CloudWatch. It is a no-op when
// the CloudWatch client is not configured.
func PublishSnapshot(ctx context.Context, snap Snapshot) {
	state := cwState.Load()
	if state == nil || state.client == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	connected := 0.0
	if snap.Connected {
		connected = 1.0
	}

	dims := []cwtypes.Dimension{{Name: aws.String("component"), Value: aws.String("session")}}
	if snap.DataMode != "" {
		dims = append(dims, cwtypes.Dimension{Name: aws.String("data_mode"), Value: aws.String(snap.DataMode)})
	}

	now := time.Now()
	data := []cwtypes.MetricDatum{
		datum("StreamFramesTotal", float64(snap.FramesTotal), cwtypes.StandardUnitCount, dims, now),
		datum("StreamReconnectsTotal", float64(snap.ReconnectsTotal), cwtypes.StandardUnitCount, dims, now),
		datum("StreamDroppedFrames", float64(snap.DroppedFrames), cwtypes.StandardUnitCount, dims, now),
		datum("DecodeFallbacks", float64(snap.DecodeFallbacks), cwtypes.StandardUnitCount, dims, now),
		datum("StreamConnected", connected, cwtypes.StandardUnitNone, dims, now),
	}
	publishMetrics(ctx, state, data)
}

func datum(name string, value float64, unit cwtypes.StandardUnit, dims []cwtypes.Dimension, ts time.Time) cwtypes.MetricDatum {
	return cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Dimensions: dims,
		Unit:       unit,
		Value:      aws.Float64(value),
		Timestamp:  aws.Time(ts),
	}
}

func publishMetrics(ctx context.Context, state *cloudWatchState, data []cwtypes.MetricDatum) {
	if state == nil || state.client == nil {
		return
	}
	if len(data) == 0 {
		logger.GetLogger().WithComponent("cloudwatch").Debug("no metric data to publish")
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := state.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(state.namespace),
		MetricData: data,
	}); err != nil {
		logger.GetLogger().WithComponent("cloudwatch").WithError(err).Warn("failed to publish CloudWatch metrics")
		return
	}

	names := make([]string, 0, len(data))
	for _, d := range data {
		if d.MetricName != nil {
			names = append(names, *d.MetricName)
		}
	}

	logger.GetLogger().WithComponent("cloudwatch").WithFields(logger.Fields{"metrics": strings.Join(names, ",")}).Debug("published metrics to CloudWatch")
}
