package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"notegeek/internal/tags"
)

const defaultMongoDatabase = "notegeek"

type userDoc struct {
	ID        bson.ObjectID `bson:"_id,omitempty"`
	Email     string        `bson:"email"`
	Password  string        `bson:"password"`
	SSOID     string        `bson:"ssoId,omitempty"`
	CreatedAt time.Time     `bson:"createdAt"`
}

type noteDoc struct {
	ID          bson.ObjectID `bson:"_id,omitempty"`
	User        bson.ObjectID `bson:"user"`
	Title       string        `bson:"title"`
	Content     string        `bson:"content"`
	Type        string        `bson:"type"`
	Tags        []string      `bson:"tags"`
	IsLocked    bool          `bson:"isLocked"`
	IsEncrypted bool          `bson:"isEncrypted"`
	LockHash    string        `bson:"lockHash,omitempty"`
	CreatedAt   time.Time     `bson:"createdAt"`
	UpdatedAt   time.Time     `bson:"updatedAt"`
}

type folderDoc struct {
	ID        bson.ObjectID `bson:"_id,omitempty"`
	User      bson.ObjectID `bson:"user"`
	Name      string        `bson:"name"`
	CreatedAt time.Time     `bson:"createdAt"`
}

func (d userDoc) model() User {
	return User{ID: d.ID.Hex(), Email: d.Email, PasswordHash: d.Password, SSOID: d.SSOID, CreatedAt: d.CreatedAt}
}

func (d noteDoc) model() Note {
	noteTags := d.Tags
	if noteTags == nil {
		noteTags = []string{}
	}
	return Note{
		ID:          d.ID.Hex(),
		UserID:      d.User.Hex(),
		Title:       d.Title,
		Content:     d.Content,
		Type:        d.Type,
		Tags:        noteTags,
		IsLocked:    d.IsLocked,
		IsEncrypted: d.IsEncrypted,
		LockHash:    d.LockHash,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

func (d folderDoc) model() Folder {
	return Folder{ID: d.ID.Hex(), UserID: d.User.Hex(), Name: d.Name, CreatedAt: d.CreatedAt}
}

// MongoStore persists users, notes and folders in one collection each.
type MongoStore struct {
	client  *mongo.Client
	users   *mongo.Collection
	notes   *mongo.Collection
	folders *mongo.Collection
}

func OpenMongo(ctx context.Context, uri string) (*MongoStore, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(mongoDatabaseName(uri))
	s := &MongoStore{
		client:  client,
		users:   db.Collection("users"),
		notes:   db.Collection("notes"),
		folders: db.Collection("folders"),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func mongoDatabaseName(uri string) string {
	parsed, err := url.Parse(uri)
	if err != nil {
		return defaultMongoDatabase
	}
	name := strings.Trim(parsed.Path, "/")
	if name == "" {
		return defaultMongoDatabase
	}
	return name
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	if _, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "ssoId", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
	}); err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}

	if _, err := s.notes.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user", Value: 1}, {Key: "updatedAt", Value: -1}}},
		{Keys: bson.D{{Key: "user", Value: 1}, {Key: "tags", Value: 1}}},
		{
			Keys: bson.D{{Key: "title", Value: "text"}, {Key: "content", Value: "text"}, {Key: "tags", Value: "text"}},
			Options: options.Index().
				SetName("notes_text").
				SetWeights(bson.D{{Key: "title", Value: 10}, {Key: "tags", Value: 5}, {Key: "content", Value: 1}}),
		},
	}); err != nil {
		return fmt.Errorf("create note indexes: %w", err)
	}

	if _, err := s.folders.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user", Value: 1}, {Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("create folder indexes: %w", err)
	}
	return nil
}

// Notes exposes the notes collection to the text search fallback.
func (s *MongoStore) Notes() *mongo.Collection {
	return s.notes
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// objectID parses a hex id. Malformed ids can never match a stored
// document, so they surface as ErrNotFound.
func objectID(id string) (bson.ObjectID, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return bson.ObjectID{}, ErrNotFound
	}
	return oid, nil
}

func ownerIDs(userID, id string) (bson.ObjectID, bson.ObjectID, error) {
	uid, err := objectID(userID)
	if err != nil {
		return uid, bson.ObjectID{}, err
	}
	oid, err := objectID(id)
	return uid, oid, err
}

func mongoErr(err error, op string) error {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return ErrDuplicate
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func (s *MongoStore) CreateUser(ctx context.Context, user User) (User, error) {
	doc := userDoc{
		ID:        bson.NewObjectID(),
		Email:     user.Email,
		Password:  user.PasswordHash,
		SSOID:     user.SSOID,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		return User{}, mongoErr(err, "insert user")
	}
	return doc.model(), nil
}

func (s *MongoStore) findUser(ctx context.Context, filter bson.M) (User, error) {
	var doc userDoc
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		return User{}, mongoErr(err, "find user")
	}
	return doc.model(), nil
}

func (s *MongoStore) GetUserByID(ctx context.Context, id string) (User, error) {
	oid, err := objectID(id)
	if err != nil {
		return User{}, err
	}
	return s.findUser(ctx, bson.M{"_id": oid})
}

func (s *MongoStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return s.findUser(ctx, bson.M{"email": email})
}

func (s *MongoStore) GetUserBySSOID(ctx context.Context, ssoID string) (User, error) {
	return s.findUser(ctx, bson.M{"ssoId": ssoID})
}

func (s *MongoStore) LinkSSO(ctx context.Context, userID, ssoID string) error {
	oid, err := objectID(userID)
	if err != nil {
		return err
	}
	result, err := s.users.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{"ssoId": ssoID}})
	if err != nil {
		return mongoErr(err, "link sso")
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) CreateNote(ctx context.Context, note Note) (Note, error) {
	uid, err := objectID(note.UserID)
	if err != nil {
		return Note{}, err
	}
	now := time.Now().UTC()
	noteTags := note.Tags
	if noteTags == nil {
		noteTags = []string{}
	}
	doc := noteDoc{
		ID:          bson.NewObjectID(),
		User:        uid,
		Title:       note.Title,
		Content:     note.Content,
		Type:        note.Type,
		Tags:        noteTags,
		IsLocked:    note.IsLocked,
		IsEncrypted: note.IsEncrypted,
		LockHash:    note.LockHash,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := s.notes.InsertOne(ctx, doc); err != nil {
		return Note{}, mongoErr(err, "insert note")
	}
	return doc.model(), nil
}

func (s *MongoStore) findNotes(ctx context.Context, filter bson.M, opts ...options.Lister[options.FindOptions]) ([]Note, error) {
	cursor, err := s.notes.Find(ctx, filter, opts...)
	if err != nil {
		return nil, fmt.Errorf("find notes: %w", err)
	}
	var docs []noteDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode notes: %w", err)
	}
	items := make([]Note, 0, len(docs))
	for _, doc := range docs {
		items = append(items, doc.model())
	}
	return items, nil
}

func (s *MongoStore) ListNotes(ctx context.Context, userID string, filter NoteFilter) ([]Note, error) {
	uid, err := objectID(userID)
	if err != nil {
		return []Note{}, nil
	}
	query := bson.M{"user": uid}
	switch {
	case filter.Tag != "":
		query["tags"] = filter.Tag
	case filter.Prefix != "":
		query["tags"] = bson.M{"$regex": "^" + regexp.QuoteMeta(filter.Prefix)}
	}
	if filter.Tag != "" && filter.Prefix != "" {
		query["tags"] = bson.M{"$all": bson.A{filter.Tag}, "$elemMatch": bson.M{"$regex": "^" + regexp.QuoteMeta(filter.Prefix)}}
	}
	return s.findNotes(ctx, query, options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}, {Key: "_id", Value: 1}}))
}

func (s *MongoStore) GetNote(ctx context.Context, userID, id string) (Note, error) {
	uid, oid, err := ownerIDs(userID, id)
	if err != nil {
		return Note{}, err
	}
	var doc noteDoc
	if err := s.notes.FindOne(ctx, bson.M{"_id": oid, "user": uid}).Decode(&doc); err != nil {
		return Note{}, mongoErr(err, "find note")
	}
	return doc.model(), nil
}

func (s *MongoStore) NotesByIDs(ctx context.Context, userID string, ids []string) ([]Note, error) {
	uid, err := objectID(userID)
	if err != nil {
		return []Note{}, nil
	}
	oids := make(bson.A, 0, len(ids))
	for _, id := range ids {
		if oid, err := bson.ObjectIDFromHex(id); err == nil {
			oids = append(oids, oid)
		}
	}
	if len(oids) == 0 {
		return []Note{}, nil
	}
	return s.findNotes(ctx, bson.M{"user": uid, "_id": bson.M{"$in": oids}})
}

func (s *MongoStore) AllNotes(ctx context.Context) ([]Note, error) {
	return s.findNotes(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
}

func (s *MongoStore) UpdateNote(ctx context.Context, note Note) (Note, error) {
	uid, oid, err := ownerIDs(note.UserID, note.ID)
	if err != nil {
		return Note{}, err
	}
	noteTags := note.Tags
	if noteTags == nil {
		noteTags = []string{}
	}
	update := bson.M{"$set": bson.M{
		"title":     note.Title,
		"content":   note.Content,
		"type":      note.Type,
		"tags":      noteTags,
		"updatedAt": time.Now().UTC(),
	}}
	var doc noteDoc
	err = s.notes.FindOneAndUpdate(ctx, bson.M{"_id": oid, "user": uid}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&doc)
	if err != nil {
		return Note{}, mongoErr(err, "update note")
	}
	return doc.model(), nil
}

func (s *MongoStore) DeleteNote(ctx context.Context, userID, id string) error {
	uid, oid, err := ownerIDs(userID, id)
	if err != nil {
		return err
	}
	result, err := s.notes.DeleteOne(ctx, bson.M{"_id": oid, "user": uid})
	if err != nil {
		return mongoErr(err, "delete note")
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) NoteTags(ctx context.Context, userID string) ([]string, error) {
	uid, err := objectID(userID)
	if err != nil {
		return []string{}, nil
	}
	var out []string
	if err := s.notes.Distinct(ctx, "tags", bson.M{"user": uid}).Decode(&out); err != nil {
		return nil, fmt.Errorf("distinct tags: %w", err)
	}
	if out == nil {
		out = []string{}
	}
	sort.Strings(out)
	return out, nil
}

// bulkFilter matches the owner's tagged notes that are neither locked nor
// encrypted. $ne also matches documents written before the flags existed.
func bulkFilter(uid bson.ObjectID, tag string) bson.M {
	return bson.M{
		"user":        uid,
		"tags":        tag,
		"isLocked":    bson.M{"$ne": true},
		"isEncrypted": bson.M{"$ne": true},
	}
}

func (s *MongoStore) DeleteNotesWithTag(ctx context.Context, userID, tag string) (int64, error) {
	uid, err := objectID(userID)
	if err != nil {
		return 0, nil
	}
	result, err := s.notes.DeleteMany(ctx, bulkFilter(uid, tag))
	if err != nil {
		return 0, fmt.Errorf("delete tagged notes: %w", err)
	}
	return result.DeletedCount, nil
}

func (s *MongoStore) RemoveTagFromNotes(ctx context.Context, userID, tag string) (int64, error) {
	uid, err := objectID(userID)
	if err != nil {
		return 0, nil
	}
	result, err := s.notes.UpdateMany(ctx, bulkFilter(uid, tag), bson.M{"$pull": bson.M{"tags": tag}})
	if err != nil {
		return 0, fmt.Errorf("remove tag: %w", err)
	}
	return result.ModifiedCount, nil
}

func (s *MongoStore) RenameTagOnNotes(ctx context.Context, userID, from, to string) (int64, error) {
	uid, err := objectID(userID)
	if err != nil {
		return 0, nil
	}
	filter := bulkFilter(uid, from)
	// Two passes: $addToSet and $pull on the same field conflict in one update.
	if _, err := s.notes.UpdateMany(ctx, filter, bson.M{"$addToSet": bson.M{"tags": to}}); err != nil {
		return 0, fmt.Errorf("rename tag: %w", err)
	}
	result, err := s.notes.UpdateMany(ctx, filter, bson.M{"$pull": bson.M{"tags": from}})
	if err != nil {
		return 0, fmt.Errorf("rename tag: %w", err)
	}
	return result.ModifiedCount, nil
}

func (s *MongoStore) CreateFolder(ctx context.Context, folder Folder) (Folder, error) {
	uid, err := objectID(folder.UserID)
	if err != nil {
		return Folder{}, err
	}
	doc := folderDoc{ID: bson.NewObjectID(), User: uid, Name: folder.Name, CreatedAt: time.Now().UTC()}
	if _, err := s.folders.InsertOne(ctx, doc); err != nil {
		return Folder{}, mongoErr(err, "insert folder")
	}
	return doc.model(), nil
}

func (s *MongoStore) ListFolders(ctx context.Context, userID string) ([]Folder, error) {
	uid, err := objectID(userID)
	if err != nil {
		return []Folder{}, nil
	}
	cursor, err := s.folders.Find(ctx, bson.M{"user": uid}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find folders: %w", err)
	}
	var docs []folderDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode folders: %w", err)
	}
	items := make([]Folder, 0, len(docs))
	for _, doc := range docs {
		items = append(items, doc.model())
	}
	return items, nil
}

func (s *MongoStore) GetFolder(ctx context.Context, userID, id string) (Folder, error) {
	uid, oid, err := ownerIDs(userID, id)
	if err != nil {
		return Folder{}, err
	}
	var doc folderDoc
	if err := s.folders.FindOne(ctx, bson.M{"_id": oid, "user": uid}).Decode(&doc); err != nil {
		return Folder{}, mongoErr(err, "find folder")
	}
	return doc.model(), nil
}

func (s *MongoStore) FolderNameTaken(ctx context.Context, userID, name, excludeID string) (bool, error) {
	uid, err := objectID(userID)
	if err != nil {
		return false, nil
	}
	filter := bson.M{"user": uid, "name": name}
	if oid, err := bson.ObjectIDFromHex(excludeID); err == nil {
		filter["_id"] = bson.M{"$ne": oid}
	}
	n, err := s.folders.CountDocuments(ctx, filter)
	if err != nil {
		return false, fmt.Errorf("count folders: %w", err)
	}
	return n > 0, nil
}

func (s *MongoStore) RenameFolder(ctx context.Context, userID, id, name string) (Folder, error) {
	uid, oid, err := ownerIDs(userID, id)
	if err != nil {
		return Folder{}, err
	}
	var doc folderDoc
	err = s.folders.FindOneAndUpdate(ctx, bson.M{"_id": oid, "user": uid}, bson.M{"$set": bson.M{"name": name}},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&doc)
	if err != nil {
		return Folder{}, mongoErr(err, "rename folder")
	}
	return doc.model(), nil
}

func (s *MongoStore) DeleteFolder(ctx context.Context, userID, id string) error {
	uid, oid, err := ownerIDs(userID, id)
	if err != nil {
		return err
	}
	result, err := s.folders.DeleteOne(ctx, bson.M{"_id": oid, "user": uid})
	if err != nil {
		return mongoErr(err, "delete folder")
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

type legacyNoteDoc struct {
	ID     bson.ObjectID `bson:"_id"`
	Folder bson.ObjectID `bson:"folder"`
}

// MigrateLegacyFolders rewrites the old note.folder reference into a
// folder/<name> tag and drops the field. Notes pointing at a folder that no
// longer exists just lose the field.
func (s *MongoStore) MigrateLegacyFolders(ctx context.Context) (int64, error) {
	cursor, err := s.notes.Find(ctx, bson.M{"folder": bson.M{"$exists": true}},
		options.Find().SetProjection(bson.M{"_id": 1, "folder": 1}))
	if err != nil {
		return 0, fmt.Errorf("find legacy notes: %w", err)
	}
	var docs []legacyNoteDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return 0, fmt.Errorf("decode legacy notes: %w", err)
	}

	names := make(map[bson.ObjectID]string)
	var migrated int64
	for _, doc := range docs {
		name, ok := names[doc.Folder]
		if !ok {
			var folder folderDoc
			err := s.folders.FindOne(ctx, bson.M{"_id": doc.Folder}).Decode(&folder)
			if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
				return migrated, fmt.Errorf("find legacy folder: %w", err)
			}
			name = folder.Name
			names[doc.Folder] = name
		}

		update := bson.M{"$unset": bson.M{"folder": ""}}
		if name != "" {
			if tag, err := tags.FolderTag(name); err == nil {
				update["$addToSet"] = bson.M{"tags": tag}
			}
		}
		if _, err := s.notes.UpdateOne(ctx, bson.M{"_id": doc.ID}, update); err != nil {
			return migrated, fmt.Errorf("migrate note %s: %w", doc.ID.Hex(), err)
		}
		migrated++
	}
	return migrated, nil
}
