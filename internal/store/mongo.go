package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"

	"faceattend/internal/attendance"
)

const (
	studentsCollection   = "students"
	attendanceCollection = "attendances"
	defaultDatabase      = "attendance"

	codeIndexOptionsConflict  = 85
	codeIndexKeySpecsConflict = 86
)

// ErrIndexConflict reports that the (studentId, date) index already exists
// with a different uniqueness than requested.
var ErrIndexConflict = errors.New("attendance index options conflict")

// Mongo wraps a connected client and the database holding both collections.
type Mongo struct {
	Client *mongo.Client
	DB     *mongo.Database
}

// NewMongo connects to MongoDB and verifies the connection with a ping.
// dbName overrides the database named in the URI path.
func NewMongo(ctx context.Context, uri, dbName string) (*Mongo, error) {
	if dbName == "" {
		if cs, err := connstring.ParseAndValidate(uri); err == nil && cs.Database != "" {
			dbName = cs.Database
		} else {
			dbName = defaultDatabase
		}
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return &Mongo{Client: client, DB: client.Database(dbName)}, nil
}

// EnsureIndexes declares the unique studentId index and the compound
// (studentId, date) attendance index. If the compound index already exists
// with the other uniqueness setting, the returned error matches
// ErrIndexConflict and the existing index is left in place.
func (m *Mongo) EnsureIndexes(ctx context.Context, onePerDay bool) error {
	_, err := m.DB.Collection(studentsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "studentId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("students index: %w", err)
	}
	_, err = m.DB.Collection(attendanceCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "studentId", Value: 1}, {Key: "date", Value: 1}},
		Options: options.Index().SetUnique(onePerDay),
	})
	if isIndexConflict(err) {
		return fmt.Errorf("attendances index: %w: %w", ErrIndexConflict, err)
	}
	if err != nil {
		return fmt.Errorf("attendances index: %w", err)
	}
	return nil
}

func isIndexConflict(err error) bool {
	var se mongo.ServerError
	return errors.As(err, &se) &&
		(se.HasErrorCode(codeIndexOptionsConflict) || se.HasErrorCode(codeIndexKeySpecsConflict))
}

// Close disconnects the client.
func (m *Mongo) Close(ctx context.Context) error {
	if m == nil || m.Client == nil {
		return nil
	}
	return m.Client.Disconnect(ctx)
}

type studentDoc struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	StudentID      string             `bson:"studentId"`
	Name           string             `bson:"name"`
	Course         string             `bson:"course"`
	FaceDescriptor []float64          `bson:"faceDescriptor"`
	RegisteredAt   time.Time          `bson:"registeredAt"`
	IsActive       bool               `bson:"isActive"`
	CreatedAt      time.Time          `bson:"createdAt"`
	UpdatedAt      time.Time          `bson:"updatedAt"`
}

func (d studentDoc) model() attendance.Student {
	return attendance.Student{
		ID:             d.ID.Hex(),
		StudentID:      d.StudentID,
		Name:           d.Name,
		Course:         d.Course,
		FaceDescriptor: d.FaceDescriptor,
		RegisteredAt:   d.RegisteredAt,
		IsActive:       d.IsActive,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

type attendanceDoc struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	StudentID   string             `bson:"studentId"`
	Name        string             `bson:"name"`
	Course      string             `bson:"course"`
	CheckInTime time.Time          `bson:"checkInTime"`
	Date        string             `bson:"date"`
	Confidence  float64            `bson:"confidence"`
	CreatedAt   time.Time          `bson:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt"`
}

func (d attendanceDoc) model() attendance.Attendance {
	return attendance.Attendance{
		ID:          d.ID.Hex(),
		StudentID:   d.StudentID,
		Name:        d.Name,
		Course:      d.Course,
		CheckInTime: d.CheckInTime,
		Date:        d.Date,
		Confidence:  d.Confidence,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

// MongoRepository maps the attendance records onto two collections.
type MongoRepository struct {
	students   *mongo.Collection
	attendance *mongo.Collection
	now        func() time.Time
}

// NewMongoRepository creates a repository over db.
func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{
		students:   db.Collection(studentsCollection),
		attendance: db.Collection(attendanceCollection),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (r *MongoRepository) CreateStudent(ctx context.Context, s attendance.Student) (attendance.Student, error) {
	doc := studentDoc{
		StudentID:      s.StudentID,
		Name:           s.Name,
		Course:         s.Course,
		FaceDescriptor: s.FaceDescriptor,
		RegisteredAt:   s.RegisteredAt,
		IsActive:       s.IsActive,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
	res, err := r.students.InsertOne(ctx, doc)
	if err != nil {
		return attendance.Student{}, mongoErr("insert student", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		doc.ID = oid
	}
	return doc.model(), nil
}

func (r *MongoRepository) GetStudent(ctx context.Context, studentID string) (attendance.Student, error) {
	var doc studentDoc
	if err := r.students.FindOne(ctx, bson.M{"studentId": studentID}).Decode(&doc); err != nil {
		return attendance.Student{}, mongoErr("get student", err)
	}
	return doc.model(), nil
}

func (r *MongoRepository) FindStudents(ctx context.Context, f attendance.StudentFilter) ([]attendance.Student, error) {
	filter := bson.M{}
	if f.Course != "" {
		filter["course"] = f.Course
	}
	if f.Active != nil {
		filter["isActive"] = *f.Active
	}
	limit, offset := attendance.ClampPage(f.Limit, f.Offset)
	opts := options.Find().
		SetSort(bson.D{{Key: "studentId", Value: 1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))

	cur, err := r.students.Find(ctx, filter, opts)
	if err != nil {
		return nil, mongoErr("find students", err)
	}
	var docs []studentDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, mongoErr("find students", err)
	}
	out := make([]attendance.Student, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.model())
	}
	return out, nil
}

func (r *MongoRepository) UpdateStudent(ctx context.Context, studentID string, u attendance.StudentUpdate) (attendance.Student, error) {
	set := bson.M{"updatedAt": r.now()}
	if u.Name != nil {
		set["name"] = *u.Name
	}
	if u.Course != nil {
		set["course"] = *u.Course
	}
	if u.FaceDescriptor != nil {
		set["faceDescriptor"] = u.FaceDescriptor
	}
	if u.IsActive != nil {
		set["isActive"] = *u.IsActive
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc studentDoc
	err := r.students.FindOneAndUpdate(ctx, bson.M{"studentId": studentID}, bson.M{"$set": set}, opts).Decode(&doc)
	if err != nil {
		return attendance.Student{}, mongoErr("update student", err)
	}
	return doc.model(), nil
}

func (r *MongoRepository) CreateAttendance(ctx context.Context, a attendance.Attendance) (attendance.Attendance, error) {
	doc := attendanceDoc{
		StudentID:   a.StudentID,
		Name:        a.Name,
		Course:      a.Course,
		CheckInTime: a.CheckInTime,
		Date:        a.Date,
		Confidence:  a.Confidence,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
	res, err := r.attendance.InsertOne(ctx, doc)
	if err != nil {
		return attendance.Attendance{}, mongoErr("insert attendance", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		doc.ID = oid
	}
	return doc.model(), nil
}

func (r *MongoRepository) GetAttendance(ctx context.Context, id string) (attendance.Attendance, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return attendance.Attendance{}, attendance.ErrNotFound
	}
	var doc attendanceDoc
	if err := r.attendance.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return attendance.Attendance{}, mongoErr("get attendance", err)
	}
	return doc.model(), nil
}

func (r *MongoRepository) FindAttendance(ctx context.Context, f attendance.AttendanceFilter) ([]attendance.Attendance, error) {
	filter := bson.M{}
	if f.StudentID != "" {
		filter["studentId"] = f.StudentID
	}
	if f.Date != "" {
		filter["date"] = f.Date
	}
	if f.Course != "" {
		filter["course"] = f.Course
	}
	if !f.From.IsZero() || !f.To.IsZero() {
		window := bson.M{}
		if !f.From.IsZero() {
			window["$gte"] = f.From
		}
		if !f.To.IsZero() {
			window["$lt"] = f.To
		}
		filter["checkInTime"] = window
	}
	limit, offset := attendance.ClampPage(f.Limit, f.Offset)
	opts := options.Find().
		SetSort(bson.D{{Key: "checkInTime", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))

	cur, err := r.attendance.Find(ctx, filter, opts)
	if err != nil {
		return nil, mongoErr("find attendance", err)
	}
	var docs []attendanceDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, mongoErr("find attendance", err)
	}
	out := make([]attendance.Attendance, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.model())
	}
	return out, nil
}

func mongoErr(op string, err error) error {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return attendance.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return attendance.ErrDuplicateKey
	default:
		return attendance.Wrap(op, err)
	}
}
