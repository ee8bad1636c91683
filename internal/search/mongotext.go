package search

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoText implements Searcher with the notes collection's weighted $text
// index (title 10, tags 5, content 1).
type MongoText struct {
	notes *mongo.Collection
}

func NewMongoText(notes *mongo.Collection) *MongoText {
	return &MongoText{notes: notes}
}

type textHit struct {
	ID    bson.ObjectID `bson:"_id"`
	Score float64       `bson:"score"`
}

func (m *MongoText) Search(ctx context.Context, q Query) ([]Hit, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, nil
	}
	uid, err := bson.ObjectIDFromHex(q.UserID)
	if err != nil {
		return []Hit{}, nil
	}

	score := bson.M{"$meta": "textScore"}
	cursor, err := m.notes.Find(ctx,
		bson.M{"user": uid, "$text": bson.M{"$search": q.Text}},
		options.Find().
			SetProjection(bson.M{"_id": 1, "score": score}).
			SetSort(bson.D{{Key: "score", Value: score}}).
			SetLimit(int64(q.limit())),
	)
	if err != nil {
		return nil, fmt.Errorf("mongo text search: %w", err)
	}
	var docs []textHit
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode text hits: %w", err)
	}

	hits := make([]Hit, 0, len(docs))
	for _, doc := range docs {
		hits = append(hits, Hit{ID: doc.ID.Hex(), Score: doc.Score})
	}
	return hits, nil
}
