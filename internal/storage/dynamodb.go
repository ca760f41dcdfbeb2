package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dennisdiepolder/breakroster/internal/types"
	"github.com/rs/zerolog"
)

// DynamoDBStore implements Store using AWS DynamoDB. Conditional writes map
// onto ConditionExpressions, balance arithmetic onto atomic ADD updates, and
// the shift exchange onto TransactWriteItems.
type DynamoDBStore struct {
	client *dynamodb.Client
	config DynamoConfig
	logger zerolog.Logger
}

// NewDynamoDBStore creates a new DynamoDB store
func NewDynamoDBStore(ctx context.Context, cfg DynamoConfig, logger zerolog.Logger) (*DynamoDBStore, error) {
	var client *dynamodb.Client

	if cfg.Mode == DynamoModeLocal {
		// For local mode, build the client directly without LoadDefaultConfig.
		// LoadDefaultConfig probes the EC2 IMDS endpoint which hangs on EC2
		// instances when static credentials are intended.
		client = dynamodb.New(dynamodb.Options{
			Region:       cfg.Region,
			BaseEndpoint: aws.String(cfg.Endpoint),
			Credentials:  credentials.NewStaticCredentialsProvider("local", "local", ""),
		})
	} else {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		client = dynamodb.NewFromConfig(awsCfg)
	}

	store := &DynamoDBStore{
		client: client,
		config: cfg,
		logger: logger,
	}

	// Create tables in local mode
	if cfg.Mode == DynamoModeLocal {
		if err := CreateTablesIfNotExist(ctx, client, cfg, logger); err != nil {
			return nil, err
		}
	}

	logger.Info().
		Str("mode", string(cfg.Mode)).
		Str("region", cfg.Region).
		Msg("DynamoDB store initialized")

	return store, nil
}

func (s *DynamoDBStore) Close() error { return nil }

// shiftItem mirrors a shifts-table row; Date is the partition key and
// AgentID the sort key so one Query lists a whole day.
type shiftItem struct {
	Date       string
	AgentID    string
	AgentName  string
	Department string
	ShiftType  string
	Revision   int64
	UpdatedAt  time.Time
}

func (i shiftItem) record() types.ShiftRecord {
	return types.ShiftRecord{
		AgentID:    i.AgentID,
		AgentName:  i.AgentName,
		Date:       i.Date,
		Department: types.Department(i.Department),
		ShiftType:  types.ShiftType(i.ShiftType),
		Revision:   i.Revision,
		UpdatedAt:  i.UpdatedAt,
	}
}

// breakItem stores the slot map as a JSON string; attributevalue cannot
// marshal int-keyed maps.
type breakItem struct {
	Date      string
	AgentID   string
	ShiftType string
	Slots     string
	Revision  int64
	UpdatedAt time.Time
}

func (i breakItem) assignment() (*types.BreakAssignment, error) {
	asn := &types.BreakAssignment{
		AgentID:   i.AgentID,
		Date:      i.Date,
		ShiftType: types.ShiftType(i.ShiftType),
		Revision:  i.Revision,
		UpdatedAt: i.UpdatedAt,
	}
	if err := unmarshalSlots(i.Slots, &asn.Slots); err != nil {
		return nil, fmt.Errorf("decode slots for %s: %w", i.AgentID, err)
	}
	return asn, nil
}

type settingsItem struct {
	ShiftType     string
	HB1StartSlot  int
	BGapMinutes   int
	HB2GapMinutes int
	Increment     int
}

type balanceItem struct {
	AgentID   string
	Days      int
	UpdatedAt time.Time
}

func dateAgentKey(date, agentID string) map[string]dbtypes.AttributeValue {
	return map[string]dbtypes.AttributeValue{
		"Date":    &dbtypes.AttributeValueMemberS{Value: date},
		"AgentID": &dbtypes.AttributeValueMemberS{Value: agentID},
	}
}

func idKey(id string) map[string]dbtypes.AttributeValue {
	return map[string]dbtypes.AttributeValue{
		"ID": &dbtypes.AttributeValueMemberS{Value: id},
	}
}

// ---------------------------------------------------------------------------
// Shifts
// ---------------------------------------------------------------------------

func (s *DynamoDBStore) PutShift(ctx context.Context, rec types.ShiftRecord) (int64, error) {
	update := expression.
		Set(expression.Name("AgentName"), expression.Value(rec.AgentName)).
		Set(expression.Name("Department"), expression.Value(string(rec.Department))).
		Set(expression.Name("ShiftType"), expression.Value(string(rec.ShiftType))).
		Set(expression.Name("UpdatedAt"), expression.Value(time.Now().UTC())).
		Add(expression.Name("Revision"), expression.Value(1))
	expr, err := expression.NewBuilder().WithUpdate(update).Build()
	if err != nil {
		return 0, fmt.Errorf("failed to build expression: %w", err)
	}

	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.config.ShiftsTable),
		Key:                       dateAgentKey(rec.Date, rec.AgentID),
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              dbtypes.ReturnValueAllNew,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to put shift: %w", err)
	}

	var item shiftItem
	if err := attributevalue.UnmarshalMap(out.Attributes, &item); err != nil {
		return 0, fmt.Errorf("failed to unmarshal shift: %w", err)
	}
	return item.Revision, nil
}

func (s *DynamoDBStore) GetShift(ctx context.Context, agentID, date string) (types.ShiftRecord, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.config.ShiftsTable),
		Key:       dateAgentKey(date, agentID),
	})
	if err != nil {
		return types.ShiftRecord{}, fmt.Errorf("failed to get shift: %w", err)
	}
	if len(out.Item) == 0 {
		return types.ShiftRecord{}, fmt.Errorf("shift %s on %s: %w", agentID, date, types.ErrNotFound)
	}

	var item shiftItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return types.ShiftRecord{}, fmt.Errorf("failed to unmarshal shift: %w", err)
	}
	return item.record(), nil
}

func (s *DynamoDBStore) ListShifts(ctx context.Context, date string) ([]types.ShiftRecord, error) {
	keyCond := expression.Key("Date").Equal(expression.Value(date))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.config.ShiftsTable),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query shifts: %w", err)
	}

	var items []shiftItem
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal shifts: %w", err)
	}
	out := make([]types.ShiftRecord, 0, len(items))
	for _, item := range items {
		out = append(out, item.record())
	}
	return out, nil
}

func (s *DynamoDBStore) ExchangeShifts(ctx context.Context, agentA, dateA, agentB, dateB string) (types.ShiftType, types.ShiftType, error) {
	a, err := s.GetShift(ctx, agentA, dateA)
	if err != nil {
		return "", "", err
	}
	b, err := s.GetShift(ctx, agentB, dateB)
	if err != nil {
		return "", "", err
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	swapUpdate := func(agentID, date string, prev, next types.ShiftType) dbtypes.TransactWriteItem {
		return dbtypes.TransactWriteItem{
			Update: &dbtypes.Update{
				TableName:           aws.String(s.config.ShiftsTable),
				Key:                 dateAgentKey(date, agentID),
				UpdateExpression:    aws.String("SET ShiftType = :next, UpdatedAt = :now ADD Revision :one"),
				ConditionExpression: aws.String("ShiftType = :prev"),
				ExpressionAttributeValues: map[string]dbtypes.AttributeValue{
					":next": &dbtypes.AttributeValueMemberS{Value: string(next)},
					":prev": &dbtypes.AttributeValueMemberS{Value: string(prev)},
					":now":  &dbtypes.AttributeValueMemberS{Value: now},
					":one":  &dbtypes.AttributeValueMemberN{Value: "1"},
				},
			},
		}
	}

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []dbtypes.TransactWriteItem{
			swapUpdate(agentA, dateA, a.ShiftType, b.ShiftType),
			swapUpdate(agentB, dateB, b.ShiftType, a.ShiftType),
		},
	})
	if err != nil {
		var canceled *dbtypes.TransactionCanceledException
		if errors.As(err, &canceled) {
			return "", "", fmt.Errorf("shift exchange %s/%s lost to a concurrent change: %w",
				agentA, agentB, types.ErrConflict)
		}
		return "", "", fmt.Errorf("failed to exchange shifts: %w", err)
	}
	return b.ShiftType, a.ShiftType, nil
}

// ---------------------------------------------------------------------------
// Breaks
// ---------------------------------------------------------------------------

func (s *DynamoDBStore) GetBreaks(ctx context.Context, agentID, date string) (*types.BreakAssignment, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.config.BreaksTable),
		Key:       dateAgentKey(date, agentID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get breaks: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("breaks %s on %s: %w", agentID, date, types.ErrNotFound)
	}

	var item breakItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal breaks: %w", err)
	}
	return item.assignment()
}

func (s *DynamoDBStore) ListBreaks(ctx context.Context, date string) ([]*types.BreakAssignment, error) {
	keyCond := expression.Key("Date").Equal(expression.Value(date))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.config.BreaksTable),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query breaks: %w", err)
	}

	var items []breakItem
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal breaks: %w", err)
	}
	out := make([]*types.BreakAssignment, 0, len(items))
	for _, item := range items {
		asn, err := item.assignment()
		if err != nil {
			return nil, err
		}
		out = append(out, asn)
	}
	return out, nil
}

func (s *DynamoDBStore) WriteBreaks(ctx context.Context, asn *types.BreakAssignment, expectedRevision int64) (int64, error) {
	slots, err := marshalSlots(asn.Slots)
	if err != nil {
		return 0, fmt.Errorf("encode slots: %w", err)
	}
	item, err := attributevalue.MarshalMap(breakItem{
		Date:      asn.Date,
		AgentID:   asn.AgentID,
		ShiftType: string(asn.ShiftType),
		Slots:     slots,
		Revision:  expectedRevision + 1,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal breaks: %w", err)
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(s.config.BreaksTable),
		Item:      item,
	}
	if expectedRevision == 0 {
		input.ConditionExpression = aws.String("attribute_not_exists(AgentID)")
	} else {
		input.ConditionExpression = aws.String("Revision = :rev")
		input.ExpressionAttributeValues = map[string]dbtypes.AttributeValue{
			":rev": &dbtypes.AttributeValueMemberN{Value: strconv.FormatInt(expectedRevision, 10)},
		}
	}

	if _, err := s.client.PutItem(ctx, input); err != nil {
		var failed *dbtypes.ConditionalCheckFailedException
		if errors.As(err, &failed) {
			return 0, fmt.Errorf("breaks %s on %s moved past revision %d: %w",
				asn.AgentID, asn.Date, expectedRevision, types.ErrConflict)
		}
		return 0, fmt.Errorf("failed to write breaks: %w", err)
	}
	return expectedRevision + 1, nil
}

func (s *DynamoDBStore) DeleteBreaks(ctx context.Context, agentID, date string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(s.config.BreaksTable),
		Key:                 dateAgentKey(date, agentID),
		ConditionExpression: aws.String("attribute_exists(AgentID)"),
	})
	if err != nil {
		var failed *dbtypes.ConditionalCheckFailedException
		if errors.As(err, &failed) {
			return fmt.Errorf("breaks %s on %s: %w", agentID, date, types.ErrNotFound)
		}
		return fmt.Errorf("failed to delete breaks: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Settings
// ---------------------------------------------------------------------------

func (s *DynamoDBStore) PutSettings(ctx context.Context, st types.DistributionSettings) error {
	item, err := attributevalue.MarshalMap(settingsItem{
		ShiftType:     string(st.ShiftType),
		HB1StartSlot:  st.HB1StartSlot,
		BGapMinutes:   st.BGapMinutes,
		HB2GapMinutes: st.HB2GapMinutes,
		Increment:     st.Increment,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.config.SettingsTable),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("failed to put settings: %w", err)
	}
	return nil
}

func (s *DynamoDBStore) GetSettings(ctx context.Context, shift types.ShiftType) (types.DistributionSettings, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.config.SettingsTable),
		Key: map[string]dbtypes.AttributeValue{
			"ShiftType": &dbtypes.AttributeValueMemberS{Value: string(shift)},
		},
	})
	if err != nil {
		return types.DistributionSettings{}, fmt.Errorf("failed to get settings: %w", err)
	}
	if len(out.Item) == 0 {
		return types.DistributionSettings{}, fmt.Errorf("settings for %s: %w", shift, types.ErrNotFound)
	}

	var item settingsItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return types.DistributionSettings{}, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	return types.DistributionSettings{
		ShiftType:     types.ShiftType(item.ShiftType),
		HB1StartSlot:  item.HB1StartSlot,
		BGapMinutes:   item.BGapMinutes,
		HB2GapMinutes: item.HB2GapMinutes,
		Increment:     item.Increment,
	}, nil
}

// ---------------------------------------------------------------------------
// Requests
// ---------------------------------------------------------------------------

func (s *DynamoDBStore) CreateRequest(ctx context.Context, r *types.Request) error {
	item, err := attributevalue.MarshalMap(r)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.config.RequestsTable),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(ID)"),
	})
	if err != nil {
		var failed *dbtypes.ConditionalCheckFailedException
		if errors.As(err, &failed) {
			return fmt.Errorf("request %s already exists: %w", r.ID, types.ErrConflict)
		}
		return fmt.Errorf("failed to create request: %w", err)
	}
	return nil
}

func (s *DynamoDBStore) GetRequest(ctx context.Context, id string) (*types.Request, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.config.RequestsTable),
		Key:       idKey(id),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("request %s: %w", id, types.ErrNotFound)
	}

	var r types.Request
	if err := attributevalue.UnmarshalMap(out.Item, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal request: %w", err)
	}
	return &r, nil
}

func (s *DynamoDBStore) ListRequests(ctx context.Context, f RequestFilter) ([]*types.Request, error) {
	// Scan with filter; request volume is small. A GSI on status would be
	// more efficient at scale.
	input := &dynamodb.ScanInput{TableName: aws.String(s.config.RequestsTable)}

	var conds []expression.ConditionBuilder
	if f.Status != "" {
		conds = append(conds, expression.Name("Status").Equal(expression.Value(string(f.Status))))
	}
	if f.Kind != "" {
		conds = append(conds, expression.Name("Kind").Equal(expression.Value(string(f.Kind))))
	}
	if f.RequesterID != "" {
		conds = append(conds, expression.Name("RequesterID").Equal(expression.Value(f.RequesterID)))
	}
	if len(conds) > 0 {
		filter := conds[0]
		for _, c := range conds[1:] {
			filter = filter.And(c)
		}
		expr, err := expression.NewBuilder().WithFilter(filter).Build()
		if err != nil {
			return nil, fmt.Errorf("failed to build expression: %w", err)
		}
		input.FilterExpression = expr.Filter()
		input.ExpressionAttributeNames = expr.Names()
		input.ExpressionAttributeValues = expr.Values()
	}

	result, err := s.client.Scan(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to scan requests: %w", err)
	}

	var out []*types.Request
	for _, item := range result.Items {
		var r types.Request
		if err := attributevalue.UnmarshalMap(item, &r); err != nil {
			return nil, fmt.Errorf("failed to unmarshal request: %w", err)
		}
		out = append(out, &r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *DynamoDBStore) TransitionRequest(ctx context.Context, id string, from, to types.RequestStatus, fields types.TransitionFields) (*types.Request, error) {
	r, err := s.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status != from {
		return nil, fmt.Errorf("request %s is %s, expected %s: %w", id, r.Status, from, types.ErrConflict)
	}

	r.Status = to
	fields.Apply(r)
	r.UpdatedAt = time.Now().UTC()

	item, err := attributevalue.MarshalMap(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	// Status is a DynamoDB reserved word
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(s.config.RequestsTable),
		Item:                     item,
		ConditionExpression:      aws.String("#st = :from"),
		ExpressionAttributeNames: map[string]string{"#st": "Status"},
		ExpressionAttributeValues: map[string]dbtypes.AttributeValue{
			":from": &dbtypes.AttributeValueMemberS{Value: string(from)},
		},
	})
	if err != nil {
		var failed *dbtypes.ConditionalCheckFailedException
		if errors.As(err, &failed) {
			return nil, fmt.Errorf("request %s is no longer %s: %w", id, from, types.ErrConflict)
		}
		return nil, fmt.Errorf("failed to transition request: %w", err)
	}
	return r, nil
}

// ---------------------------------------------------------------------------
// Balances
// ---------------------------------------------------------------------------

func (s *DynamoDBStore) PutBalance(ctx context.Context, b types.LeaveBalance) error {
	item, err := attributevalue.MarshalMap(balanceItem{
		AgentID:   b.AgentID,
		Days:      b.Days,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal balance: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.config.BalancesTable),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("failed to put balance: %w", err)
	}
	return nil
}

func (s *DynamoDBStore) GetBalance(ctx context.Context, agentID string) (types.LeaveBalance, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.config.BalancesTable),
		Key: map[string]dbtypes.AttributeValue{
			"AgentID": &dbtypes.AttributeValueMemberS{Value: agentID},
		},
	})
	if err != nil {
		return types.LeaveBalance{}, fmt.Errorf("failed to get balance: %w", err)
	}
	if len(out.Item) == 0 {
		return types.LeaveBalance{}, fmt.Errorf("balance for %s: %w", agentID, types.ErrNotFound)
	}

	var item balanceItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return types.LeaveBalance{}, fmt.Errorf("failed to unmarshal balance: %w", err)
	}
	return types.LeaveBalance{AgentID: item.AgentID, Days: item.Days, UpdatedAt: item.UpdatedAt}, nil
}

func (s *DynamoDBStore) DeductBalance(ctx context.Context, agentID string, days int) (int, error) {
	// Days is atomically decremented only while it covers the amount;
	// read-modify-write would lose concurrent updates.
	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.config.BalancesTable),
		Key: map[string]dbtypes.AttributeValue{
			"AgentID": &dbtypes.AttributeValueMemberS{Value: agentID},
		},
		UpdateExpression:         aws.String("SET UpdatedAt = :now ADD #d :neg"),
		ConditionExpression:      aws.String("#d >= :amt"),
		ExpressionAttributeNames: map[string]string{"#d": "Days"},
		ExpressionAttributeValues: map[string]dbtypes.AttributeValue{
			":neg": &dbtypes.AttributeValueMemberN{Value: strconv.Itoa(-days)},
			":amt": &dbtypes.AttributeValueMemberN{Value: strconv.Itoa(days)},
			":now": &dbtypes.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
		ReturnValues: dbtypes.ReturnValueUpdatedNew,
	})
	if err != nil {
		var failed *dbtypes.ConditionalCheckFailedException
		if !errors.As(err, &failed) {
			return 0, fmt.Errorf("failed to deduct balance: %w", err)
		}
		// Condition failure is either a missing row or an insufficient
		// balance; read back to tell them apart.
		b, gerr := s.GetBalance(ctx, agentID)
		if gerr != nil {
			return 0, gerr
		}
		return 0, &types.InsufficientBalanceError{AgentID: agentID, Requested: days, Available: b.Days}
	}

	var item balanceItem
	if err := attributevalue.UnmarshalMap(out.Attributes, &item); err != nil {
		return 0, fmt.Errorf("failed to unmarshal balance: %w", err)
	}
	return item.Days, nil
}

func (s *DynamoDBStore) AddBalance(ctx context.Context, agentID string, days int) (int, error) {
	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.config.BalancesTable),
		Key: map[string]dbtypes.AttributeValue{
			"AgentID": &dbtypes.AttributeValueMemberS{Value: agentID},
		},
		UpdateExpression:         aws.String("SET UpdatedAt = :now ADD #d :inc"),
		ExpressionAttributeNames: map[string]string{"#d": "Days"},
		ExpressionAttributeValues: map[string]dbtypes.AttributeValue{
			":inc": &dbtypes.AttributeValueMemberN{Value: strconv.Itoa(days)},
			":now": &dbtypes.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
		ReturnValues: dbtypes.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to add balance: %w", err)
	}

	var item balanceItem
	if err := attributevalue.UnmarshalMap(out.Attributes, &item); err != nil {
		return 0, fmt.Errorf("failed to unmarshal balance: %w", err)
	}
	return item.Days, nil
}

// ---------------------------------------------------------------------------
// Warnings
// ---------------------------------------------------------------------------

func (s *DynamoDBStore) CreateWarning(ctx context.Context, w *types.Warning) error {
	item, err := attributevalue.MarshalMap(w)
	if err != nil {
		return fmt.Errorf("failed to marshal warning: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.config.WarningsTable),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(ID)"),
	})
	if err != nil {
		var failed *dbtypes.ConditionalCheckFailedException
		if errors.As(err, &failed) {
			return fmt.Errorf("warning %s already exists: %w", w.ID, types.ErrConflict)
		}
		return fmt.Errorf("failed to create warning: %w", err)
	}
	return nil
}

func (s *DynamoDBStore) ListWarnings(ctx context.Context, f WarningFilter) ([]*types.Warning, error) {
	input := &dynamodb.ScanInput{TableName: aws.String(s.config.WarningsTable)}

	var conds []expression.ConditionBuilder
	if f.AgentID != "" {
		conds = append(conds, expression.Name("AgentID").Equal(expression.Value(f.AgentID)))
	}
	if f.Date != "" {
		conds = append(conds, expression.Name("Date").Equal(expression.Value(f.Date)))
	}
	if f.Unresolved {
		conds = append(conds, expression.Name("Resolved").Equal(expression.Value(false)))
	}
	if len(conds) > 0 {
		filter := conds[0]
		for _, c := range conds[1:] {
			filter = filter.And(c)
		}
		expr, err := expression.NewBuilder().WithFilter(filter).Build()
		if err != nil {
			return nil, fmt.Errorf("failed to build expression: %w", err)
		}
		input.FilterExpression = expr.Filter()
		input.ExpressionAttributeNames = expr.Names()
		input.ExpressionAttributeValues = expr.Values()
	}

	result, err := s.client.Scan(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to scan warnings: %w", err)
	}

	var out []*types.Warning
	for _, item := range result.Items {
		var w types.Warning
		if err := attributevalue.UnmarshalMap(item, &w); err != nil {
			return nil, fmt.Errorf("failed to unmarshal warning: %w", err)
		}
		out = append(out, &w)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *DynamoDBStore) UnresolvedWarning(ctx context.Context, agentID, date string, kind types.WarningKind) (*types.Warning, error) {
	filter := expression.Name("AgentID").Equal(expression.Value(agentID)).
		And(expression.Name("Date").Equal(expression.Value(date))).
		And(expression.Name("Kind").Equal(expression.Value(string(kind)))).
		And(expression.Name("Resolved").Equal(expression.Value(false)))
	expr, err := expression.NewBuilder().WithFilter(filter).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	result, err := s.client.Scan(ctx, &dynamodb.ScanInput{
		TableName:                 aws.String(s.config.WarningsTable),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan warnings: %w", err)
	}
	if len(result.Items) == 0 {
		return nil, fmt.Errorf("unresolved %s warning for %s on %s: %w", kind, agentID, date, types.ErrNotFound)
	}

	var warnings []*types.Warning
	for _, item := range result.Items {
		var w types.Warning
		if err := attributevalue.UnmarshalMap(item, &w); err != nil {
			return nil, fmt.Errorf("failed to unmarshal warning: %w", err)
		}
		warnings = append(warnings, &w)
	}
	sort.Slice(warnings, func(i, j int) bool { return warnings[i].CreatedAt.Before(warnings[j].CreatedAt) })
	return warnings[0], nil
}

func (s *DynamoDBStore) ResolveWarning(ctx context.Context, id string) (*types.Warning, error) {
	update := expression.Set(expression.Name("Resolved"), expression.Value(true))
	cond := expression.AttributeExists(expression.Name("ID"))
	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(cond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.config.WarningsTable),
		Key:                       idKey(id),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              dbtypes.ReturnValueAllNew,
	})
	if err != nil {
		var failed *dbtypes.ConditionalCheckFailedException
		if errors.As(err, &failed) {
			return nil, fmt.Errorf("warning %s: %w", id, types.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to resolve warning: %w", err)
	}

	var w types.Warning
	if err := attributevalue.UnmarshalMap(out.Attributes, &w); err != nil {
		return nil, fmt.Errorf("failed to unmarshal warning: %w", err)
	}
	return &w, nil
}
