package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DynamoOptions configures the DynamoDB-backed store. EndpointURL is set for
// local development against dynamodb-local and left empty in AWS.
type DynamoOptions struct {
	EndpointURL     string
	TableName       string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// DynamoStore persists whole sessions as single DynamoDB items keyed by
// session_id.
type DynamoStore struct {
	client *dynamodb.Client
	table  string
}

// NewDynamoStore creates the store and ensures the backing table exists.
func NewDynamoStore(ctx context.Context, opts DynamoOptions) (*DynamoStore, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if opts.EndpointURL != "" {
			o.BaseEndpoint = aws.String(opts.EndpointURL)
		}
	})

	store := &DynamoStore{client: client, table: opts.TableName}
	if err := store.ensureTable(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// ensureTable creates the sessions table if it does not already exist.
func (d *DynamoStore) ensureTable(ctx context.Context) error {
	_, err := d.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(d.table),
	})
	if err == nil {
		return nil
	}

	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return fmt.Errorf("describe table %s: %w", d.table, err)
	}

	log.Info().Str("table", d.table).Msg("creating sessions table")
	_, err = d.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(d.table),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("session_id"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("session_id"), KeyType: types.KeyTypeHash},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		return fmt.Errorf("create table %s: %w", d.table, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(d.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(d.table),
	}, 2*time.Minute); err != nil {
		return fmt.Errorf("wait for table %s: %w", d.table, err)
	}
	return nil
}

func (d *DynamoStore) Create(ctx context.Context) (*Session, error) {
	now := time.Now().UTC()
	sess := &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  []Message{},
	}
	if err := d.put(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (d *DynamoStore) Get(ctx context.Context, id string) (*Session, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.table),
		Key:       sessionKey(id),
	})
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	if out.Item == nil {
		return nil, &ErrSessionNotFound{ID: id}
	}

	var sess Session
	if err := attributevalue.UnmarshalMap(out.Item, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session %s: %w", id, err)
	}
	return &sess, nil
}

func (d *DynamoStore) List(ctx context.Context, limit int) ([]Summary, error) {
	var summaries []Summary

	paginator := dynamodb.NewScanPaginator(d.client, &dynamodb.ScanInput{
		TableName: aws.String(d.table),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scan sessions: %w", err)
		}
		for _, item := range page.Items {
			var sess Session
			if err := attributevalue.UnmarshalMap(item, &sess); err != nil {
				log.Warn().Err(err).Msg("skipping unreadable session item")
				continue
			}
			summaries = append(summaries, sess.Summarize())
		}
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}

func (d *DynamoStore) Delete(ctx context.Context, id string) error {
	_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.table),
		Key:       sessionKey(id),
	})
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

func (d *DynamoStore) AddMessage(ctx context.Context, id string, msg Message) error {
	return d.update(ctx, id, func(sess *Session) {
		sess.Messages = append(sess.Messages, msg)
	})
}

func (d *DynamoStore) UpdateTitle(ctx context.Context, id string, title string) error {
	return d.update(ctx, id, func(sess *Session) {
		sess.Title = title
	})
}

func (d *DynamoStore) AddTokens(ctx context.Context, id string, tokens int) error {
	return d.update(ctx, id, func(sess *Session) {
		sess.TotalTokens += tokens
	})
}

// update applies mutate to the stored session and writes the whole item back.
func (d *DynamoStore) update(ctx context.Context, id string, mutate func(*Session)) error {
	sess, err := d.Get(ctx, id)
	if err != nil {
		return err
	}
	mutate(sess)
	sess.UpdatedAt = time.Now().UTC()
	return d.put(ctx, sess)
}

func (d *DynamoStore) put(ctx context.Context, sess *Session) error {
	item, err := attributevalue.MarshalMap(sess)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", sess.ID, err)
	}
	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put session %s: %w", sess.ID, err)
	}
	return nil
}

func sessionKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"session_id": &types.AttributeValueMemberS{Value: id},
	}
}
