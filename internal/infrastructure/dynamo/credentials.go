package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/signin-api/internal/domain"
)

// CredentialRepo provides typed DynamoDB operations for the sign-in
// credentials table. PK: identifier, SK: secret_hash.
type CredentialRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewCredentialRepo(client *dynamodb.Client, tableName string) *CredentialRepo {
	return &CredentialRepo{client: client, tableName: tableName}
}

func (r *CredentialRepo) Put(ctx context.Context, c *domain.VerificationCredential) error {
	item, err := attributevalue.MarshalMap(c)
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

// ListByIdentifier returns every outstanding credential for the identifier,
// expired rows included — expiry is the verifier's call, not the store's.
func (r *CredentialRepo) ListByIdentifier(ctx context.Context, identifier string) ([]domain.VerificationCredential, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("identifier = :id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":id": &types.AttributeValueMemberS{Value: identifier},
		},
	})
	if err != nil {
		return nil, err
	}
	var creds []domain.VerificationCredential
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &creds); err != nil {
		return nil, fmt.Errorf("unmarshal credentials: %w", err)
	}
	return creds, nil
}

// DeleteByHash deletes at most one credential row and reports whether a row
// was actually removed. ReturnValues ALL_OLD makes the delete-and-observe a
// single DynamoDB operation; this is the only atomicity primitive one-time
// consumption relies on, so it must never become a read followed by a delete.
func (r *CredentialRepo) DeleteByHash(ctx context.Context, identifier, secretHash string) (bool, error) {
	out, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    aws.String(r.tableName),
		Key:          compositeKey("identifier", identifier, "secret_hash", secretHash),
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return false, err
	}
	return len(out.Attributes) > 0, nil
}
