package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"safehaven/models"
)

// Mongo keeps the users and patients collections in a MongoDB database.
// Identifiers are ObjectID hex strings.
type Mongo struct {
	client   *mongo.Client
	users    *mongo.Collection
	patients *mongo.Collection
}

type userDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Username  string             `bson:"username"`
	Password  string             `bson:"password"`
	CreatedAt time.Time          `bson:"created_at"`
}

type patientDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Name      string             `bson:"name"`
	Age       string             `bson:"age"`
	Condition string             `bson:"condition"`
	CreatedAt time.Time          `bson:"created_at"`
}

func OpenMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	db := client.Database(database)
	m := &Mongo{
		client:   client,
		users:    db.Collection("users"),
		patients: db.Collection("patients"),
	}

	// Duplicate usernames are rejected by the store, not by handler luck.
	_, err = m.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	return m, nil
}

func (m *Mongo) CreateUser(ctx context.Context, username, passwordHash string) (models.User, error) {
	doc := userDoc{
		Username:  username,
		Password:  passwordHash,
		CreatedAt: time.Now().UTC(),
	}
	res, err := m.users.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.User{}, ErrDuplicateUsername
		}
		return models.User{}, err
	}
	doc.ID = res.InsertedID.(primitive.ObjectID)
	return doc.user(), nil
}

func (m *Mongo) UserByUsername(ctx context.Context, username string) (models.User, error) {
	var doc userDoc
	err := m.users.FindOne(ctx, bson.M{"username": username}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		return models.User{}, err
	}
	return doc.user(), nil
}

func (m *Mongo) CreatePatient(ctx context.Context, p models.Patient) (models.Patient, error) {
	doc := patientDoc{
		Name:      p.Name,
		Age:       p.Age,
		Condition: p.Condition,
		CreatedAt: time.Now().UTC(),
	}
	res, err := m.patients.InsertOne(ctx, doc)
	if err != nil {
		return models.Patient{}, err
	}
	doc.ID = res.InsertedID.(primitive.ObjectID)
	return doc.patient(), nil
}

func (m *Mongo) Patients(ctx context.Context) ([]models.Patient, error) {
	cur, err := m.patients.Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var patients []models.Patient
	for cur.Next(ctx) {
		var doc patientDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		patients = append(patients, doc.patient())
	}
	return patients, cur.Err()
}

func (m *Mongo) PatientByID(ctx context.Context, id string) (models.Patient, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return models.Patient{}, ErrNotFound
	}
	var doc patientDoc
	err = m.patients.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Patient{}, ErrNotFound
	}
	if err != nil {
		return models.Patient{}, err
	}
	return doc.patient(), nil
}

func (m *Mongo) UpdatePatient(ctx context.Context, id, name, age, condition string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	res, err := m.patients.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{
		"name":      name,
		"age":       age,
		"condition": condition,
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) DeletePatient(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		// Nothing can match a malformed id; same outcome as deleting an
		// id that was never assigned.
		return nil
	}
	_, err = m.patients.DeleteOne(ctx, bson.M{"_id": oid})
	return err
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func (d userDoc) user() models.User {
	return models.User{
		ID:           d.ID.Hex(),
		Username:     d.Username,
		PasswordHash: d.Password,
		CreatedAt:    d.CreatedAt,
	}
}

func (d patientDoc) patient() models.Patient {
	return models.Patient{
		ID:        d.ID.Hex(),
		Name:      d.Name,
		Age:       d.Age,
		Condition: d.Condition,
		CreatedAt: d.CreatedAt,
	}
}
