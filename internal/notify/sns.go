// Package notify alerts sales staff about hot leads.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"go.uber.org/zap"

	"github.com/marwie0904/leadify-RE-APP-sub004/internal/model"
	"github.com/marwie0904/leadify-RE-APP-sub004/pkg/logger"
)

// SNSService is the subset of the SNS client used here.
type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSNotifier publishes qualified leads at or above a tier to a topic.
type SNSNotifier struct {
	client   SNSService
	topicARN string
	minTier  model.Tier
	log      *logger.Logger
}

// NewSNSNotifier loads the default AWS config for region.
func NewSNSNotifier(ctx context.Context, region, topicARN string, log *logger.Logger) (*SNSNotifier, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewSNSNotifierWithClient(sns.NewFromConfig(awsCfg), topicARN, log), nil
}

// NewSNSNotifierWithClient wraps an existing client. Only hot leads are sent.
func NewSNSNotifierWithClient(client SNSService, topicARN string, log *logger.Logger) *SNSNotifier {
	if log == nil {
		log = logger.NewNop()
	}
	return &SNSNotifier{client: client, topicARN: topicARN, minTier: model.TierHot, log: log}
}

// PublishLead implements the lead sink contract.
func (n *SNSNotifier) PublishLead(ctx context.Context, lead *model.Lead) error {
	if !atLeast(lead.Tier, n.minTier) {
		return nil
	}

	body, err := json.Marshal(lead)
	if err != nil {
		return fmt.Errorf("marshal lead: %w", err)
	}

	out, err := n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Subject:  aws.String(subject(lead)),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"tier": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(lead.Tier)),
			},
			"agent_id": {
				DataType:    aws.String("String"),
				StringValue: aws.String(lead.AgentID),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("publish lead %s to sns: %w", lead.ID, err)
	}

	n.log.Info("hot lead notification sent",
		zap.String("lead_id", lead.ID),
		zap.String("agent_id", lead.AgentID),
		zap.String("message_id", aws.ToString(out.MessageId)))
	return nil
}

func subject(lead *model.Lead) string {
	name := strings.TrimSpace(lead.BANT.ContactName)
	if name == "" {
		name = "New lead"
	}
	return fmt.Sprintf("%s lead: %s (%.0f points)", strings.ToUpper(string(lead.Tier)), name, lead.Score)
}

var tierRank = map[model.Tier]int{model.TierCold: 0, model.TierWarm: 1, model.TierHot: 2}

func atLeast(t, floor model.Tier) bool {
	return tierRank[t] >= tierRank[floor]
}
