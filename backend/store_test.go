package backend

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamodbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/theoremus-urban-solutions/surveyor-tracking/model"
)

var t0 = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

func fixAt(id string, offset time.Duration, lat float64) model.LocationFix {
	return model.NewLocationFix(id, lat, 23.3, t0.Add(offset))
}

// exerciseStore runs the same scenario against any Store.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	// Out of order on purpose.
	for _, f := range []model.LocationFix{
		fixAt("SUR001", 2*time.Minute, 42.2),
		fixAt("SUR001", 0, 42.0),
		fixAt("SUR001", time.Minute, 42.1),
		fixAt("SUR002", 30*time.Second, 43.0),
		fixAt("SUR001", 10*time.Minute, 42.9),
	} {
		if err := s.SaveFix(ctx, f); err != nil {
			t.Fatalf("SaveFix(%+v): %v", f, err)
		}
	}

	latest, err := s.Latest(ctx, "SUR001")
	if err != nil || latest == nil {
		t.Fatalf("Latest: %v %v", latest, err)
	}
	if latest.Latitude != 42.9 {
		t.Errorf("Latest latitude = %v, want 42.9", latest.Latitude)
	}

	none, err := s.Latest(ctx, "SUR404")
	if err != nil || none != nil {
		t.Errorf("Latest(unknown) = %v, %v; want nil, nil", none, err)
	}

	all, err := s.LatestAll(ctx)
	if err != nil {
		t.Fatalf("LatestAll: %v", err)
	}
	if len(all) != 2 || all[0].SurveyorID != "SUR001" || all[1].SurveyorID != "SUR002" {
		t.Fatalf("LatestAll = %+v", all)
	}
	if all[0].Latitude != 42.9 || all[1].Latitude != 43.0 {
		t.Errorf("LatestAll picked wrong fixes: %+v", all)
	}

	track, err := s.Track(ctx, "SUR001", t0, t0.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	if len(track) != 3 {
		t.Fatalf("Track returned %d fixes, want 3 (bounds inclusive)", len(track))
	}
	for i, want := range []float64{42.0, 42.1, 42.2} {
		if track[i].Latitude != want {
			t.Errorf("track[%d].Latitude = %v, want %v", i, track[i].Latitude, want)
		}
	}

	empty, err := s.Track(ctx, "SUR001", t0.Add(time.Hour), t0.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("Track(empty): %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("Track(empty) = %#v, want empty non-nil slice", empty)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
	t.Logf("✓ MemoryStore orders fixes and answers latest and track queries")
}

func TestMemoryStoreBoundsHistory(t *testing.T) {
	s := NewMemoryStore()
	s.MaxPerSurveyor = 3
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := s.SaveFix(ctx, fixAt("SUR001", time.Duration(i)*time.Minute, float64(i))); err != nil {
			t.Fatal(err)
		}
	}
	track, _ := s.Track(ctx, "SUR001", t0, t0.Add(time.Hour))
	if len(track) != 3 || track[0].Latitude != 2 {
		t.Errorf("track = %+v, want the 3 newest fixes", track)
	}
	t.Logf("✓ MemoryStore drops the oldest fixes past the bound")
}

func TestMemoryStoreRejectsBadTimestamp(t *testing.T) {
	s := NewMemoryStore()
	err := s.SaveFix(context.Background(), model.LocationFix{SurveyorID: "SUR001", Timestamp: "yesterday"})
	if err == nil {
		t.Fatal("expected an error for an unparseable timestamp")
	}
	t.Logf("✓ MemoryStore rejects unparseable timestamps")
}

func TestDynamoStore(t *testing.T) {
	fake := &fakeDynamo{pageSize: 2}
	exerciseStore(t, NewDynamoStore(fake, "fixes"))
	if fake.tables["fixes"] == 0 {
		t.Error("no request addressed the configured table")
	}
	t.Logf("✓ DynamoStore pages through queries and scans")
}

// fakeDynamo answers the PutItem, Query and Scan shapes DynamoStore sends,
// returning at most pageSize items per call.
type fakeDynamo struct {
	mu       sync.Mutex
	pageSize int
	items    []map[string]dynamodbtypes.AttributeValue
	tables   map[string]int
}

func str(item map[string]dynamodbtypes.AttributeValue, key string) string {
	if v, ok := item[key].(*dynamodbtypes.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func (f *fakeDynamo) touch(table *string) {
	if f.tables == nil {
		f.tables = map[string]int{}
	}
	if table != nil {
		f.tables[*table]++
	}
}

func (f *fakeDynamo) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touch(in.TableName)
	id, ts := str(in.Item, "surveyor_id"), str(in.Item, "timestamp")
	if id == "" || ts == "" {
		return nil, fmt.Errorf("missing key attributes")
	}
	for i, it := range f.items {
		if str(it, "surveyor_id") == id && str(it, "timestamp") == ts {
			f.items[i] = in.Item
			return &dynamodb.PutItemOutput{}, nil
		}
	}
	f.items = append(f.items, in.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) sorted() []map[string]dynamodbtypes.AttributeValue {
	out := append([]map[string]dynamodbtypes.AttributeValue(nil), f.items...)
	sort.Slice(out, func(i, j int) bool {
		if a, b := str(out[i], "surveyor_id"), str(out[j], "surveyor_id"); a != b {
			return a < b
		}
		return str(out[i], "timestamp") < str(out[j], "timestamp")
	})
	return out
}

// page applies ExclusiveStartKey, limit and pageSize.
func (f *fakeDynamo) page(items []map[string]dynamodbtypes.AttributeValue, start map[string]dynamodbtypes.AttributeValue, limit *int32) ([]map[string]dynamodbtypes.AttributeValue, map[string]dynamodbtypes.AttributeValue) {
	if start != nil {
		for i, it := range items {
			if str(it, "surveyor_id") == str(start, "surveyor_id") && str(it, "timestamp") == str(start, "timestamp") {
				items = items[i+1:]
				break
			}
		}
	}
	n := f.pageSize
	if limit != nil && int(*limit) < n {
		n = int(*limit)
	}
	if len(items) <= n {
		return items, nil
	}
	last := items[n-1]
	if limit != nil && int(*limit) == n {
		// A satisfied Limit still reports a key in DynamoDB; callers that
		// set Limit do not page.
		return items[:n], nil
	}
	return items[:n], map[string]dynamodbtypes.AttributeValue{
		"surveyor_id": last["surveyor_id"],
		"timestamp":   last["timestamp"],
	}
}

func (f *fakeDynamo) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touch(in.TableName)
	vals := in.ExpressionAttributeValues
	id := str(vals, ":id")
	from, to := str(vals, ":from"), str(vals, ":to")

	var match []map[string]dynamodbtypes.AttributeValue
	for _, it := range f.sorted() {
		if str(it, "surveyor_id") != id {
			continue
		}
		ts := str(it, "timestamp")
		if from != "" && (ts < from || ts > to) {
			continue
		}
		match = append(match, it)
	}
	if in.ScanIndexForward != nil && !*in.ScanIndexForward {
		for i, j := 0, len(match)-1; i < j; i, j = i+1, j-1 {
			match[i], match[j] = match[j], match[i]
		}
	}
	items, next := f.page(match, in.ExclusiveStartKey, in.Limit)
	return &dynamodb.QueryOutput{Items: items, LastEvaluatedKey: next}, nil
}

func (f *fakeDynamo) Scan(ctx context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touch(in.TableName)
	items, next := f.page(f.sorted(), in.ExclusiveStartKey, in.Limit)
	return &dynamodb.ScanOutput{Items: items, LastEvaluatedKey: next}, nil
}
