// Package mongostore persists the roster, attendance and users in MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"schoolattend/internal/domain"
)

const (
	colClasses     = "classes"
	colStudents    = "students"
	colEnrollments = "student_classes"
	colAttendances = "attendances"
	colUsers       = "users"
)

// Store implements domain.Store on a MongoDB database.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	sess   mongo.Session
}

// Connect dials uri and selects database name.
func Connect(ctx context.Context, uri, name string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetConnectTimeout(5*time.Second))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	return &Store{client: client, db: client.Database(name)}, nil
}

// EnsureIndexes creates the unique constraints the domain relies on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		colEnrollments: {
			{Keys: bson.D{{Key: "studentId", Value: 1}, {Key: "classId", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "classId", Value: 1}, {Key: "seq", Value: 1}}},
		},
		colAttendances: {
			{Keys: bson.D{{Key: "classId", Value: 1}, {Key: "studentId", Value: 1}, {Key: "date", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "date", Value: 1}, {Key: "classId", Value: 1}}},
		},
		colUsers: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
	}
	for col, models := range indexes {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", col, err)
		}
	}
	return nil
}

// WithTx runs fn in a multi-document transaction (requires a replica set).
func (s *Store) WithTx(ctx context.Context, fn func(tx domain.Store) error) error {
	if s.sess != nil {
		return fn(s)
	}
	sess, err := s.client.StartSession()
	if err != nil {
		return err
	}
	defer sess.EndSession(ctx)
	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(&Store{client: s.client, db: s.db, sess: sess})
	})
	return err
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// bind attaches the open transaction, if any, to ctx.
func (s *Store) bind(ctx context.Context) context.Context {
	if s.sess == nil {
		return ctx
	}
	return mongo.NewSessionContext(ctx, s.sess)
}

func (s *Store) col(name string) *mongo.Collection { return s.db.Collection(name) }

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return domain.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", domain.ErrConflict, err)
	default:
		return err
	}
}

func now() time.Time { return time.Now().UTC() }

// ---------- documents ----------

type classDoc struct {
	ID              string    `bson:"_id"`
	Name            string    `bson:"name"`
	CreatedBy       string    `bson:"createdBy"`
	AssignedTeacher *string   `bson:"assignedTeacher,omitempty"`
	CreatedAt       time.Time `bson:"createdAt"`
	UpdatedAt       time.Time `bson:"updatedAt"`
}

func (d classDoc) model() domain.Class {
	return domain.Class{ID: d.ID, Name: d.Name, CreatedBy: d.CreatedBy, AssignedTeacher: d.AssignedTeacher, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt}
}

type studentDoc struct {
	ID         string    `bson:"_id"`
	Name       string    `bson:"name"`
	RollNumber string    `bson:"rollNumber"`
	Email      string    `bson:"email"`
	CreatedAt  time.Time `bson:"createdAt"`
	UpdatedAt  time.Time `bson:"updatedAt"`
}

func (d studentDoc) model() domain.Student {
	return domain.Student{ID: d.ID, Name: d.Name, RollNumber: d.RollNumber, Email: d.Email, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt}
}

type enrollmentDoc struct {
	ID        string    `bson:"_id"`
	StudentID string    `bson:"studentId"`
	ClassID   string    `bson:"classId"`
	Seq       int64     `bson:"seq"`
	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

type attendanceDoc struct {
	ID        string    `bson:"_id"`
	ClassID   string    `bson:"classId"`
	StudentID string    `bson:"studentId"`
	Date      time.Time `bson:"date"`
	Status    string    `bson:"status"`
	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

func (d attendanceDoc) model() domain.AttendanceRecord {
	return domain.AttendanceRecord{
		ID: d.ID, ClassID: d.ClassID, StudentID: d.StudentID,
		Date: domain.StartOfDay(d.Date), Status: domain.Status(d.Status),
		CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}
}

type userDoc struct {
	ID           string    `bson:"_id"`
	Name         string    `bson:"name"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"passwordHash"`
	Role         string    `bson:"role"`
	CreatedAt    time.Time `bson:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt"`
}

func (d userDoc) model() domain.User {
	return domain.User{ID: d.ID, Name: d.Name, Email: d.Email, PasswordHash: d.PasswordHash, Role: domain.Role(d.Role), CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt}
}

func decodeAll[T any](ctx context.Context, cur *mongo.Cursor) ([]T, error) {
	out := []T{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ---------- classes ----------

func (s *Store) CreateClass(ctx context.Context, c domain.Class) (domain.Class, error) {
	ctx = s.bind(ctx)
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	t := now()
	doc := classDoc{ID: c.ID, Name: c.Name, CreatedBy: c.CreatedBy, AssignedTeacher: c.AssignedTeacher, CreatedAt: t, UpdatedAt: t}
	if _, err := s.col(colClasses).InsertOne(ctx, doc); err != nil {
		return domain.Class{}, mapErr(err)
	}
	return doc.model(), nil
}

func (s *Store) GetClass(ctx context.Context, id string) (domain.Class, error) {
	var doc classDoc
	if err := s.col(colClasses).FindOne(s.bind(ctx), bson.M{"_id": id}).Decode(&doc); err != nil {
		return domain.Class{}, mapErr(err)
	}
	return doc.model(), nil
}

func (s *Store) ListClasses(ctx context.Context) ([]domain.Class, error) {
	ctx = s.bind(ctx)
	cur, err := s.col(colClasses).Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	docs, err := decodeAll[classDoc](ctx, cur)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Class, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.model())
	}
	return out, nil
}

func (s *Store) UpdateClass(ctx context.Context, c domain.Class) (domain.Class, error) {
	set := bson.M{"name": c.Name, "updatedAt": now()}
	update := bson.M{"$set": set}
	if c.AssignedTeacher != nil {
		set["assignedTeacher"] = *c.AssignedTeacher
	} else {
		update["$unset"] = bson.M{"assignedTeacher": ""}
	}
	var doc classDoc
	err := s.col(colClasses).FindOneAndUpdate(s.bind(ctx), bson.M{"_id": c.ID}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&doc)
	if err != nil {
		return domain.Class{}, mapErr(err)
	}
	return doc.model(), nil
}

func (s *Store) DeleteClass(ctx context.Context, id string) error {
	ctx = s.bind(ctx)
	res, err := s.col(colClasses).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	if _, err := s.col(colEnrollments).DeleteMany(ctx, bson.M{"classId": id}); err != nil {
		return err
	}
	_, err = s.col(colAttendances).DeleteMany(ctx, bson.M{"classId": id})
	return err
}

// ---------- students ----------

func (s *Store) CreateStudent(ctx context.Context, st domain.Student) (domain.Student, error) {
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	t := now()
	doc := studentDoc{ID: st.ID, Name: st.Name, RollNumber: st.RollNumber, Email: st.Email, CreatedAt: t, UpdatedAt: t}
	if _, err := s.col(colStudents).InsertOne(s.bind(ctx), doc); err != nil {
		return domain.Student{}, mapErr(err)
	}
	return doc.model(), nil
}

func (s *Store) GetStudent(ctx context.Context, id string) (domain.Student, error) {
	var doc studentDoc
	if err := s.col(colStudents).FindOne(s.bind(ctx), bson.M{"_id": id}).Decode(&doc); err != nil {
		return domain.Student{}, mapErr(err)
	}
	return doc.model(), nil
}

func (s *Store) ListStudents(ctx context.Context) ([]domain.Student, error) {
	return s.findStudents(s.bind(ctx), bson.M{})
}

func (s *Store) findStudents(ctx context.Context, filter any) ([]domain.Student, error) {
	cur, err := s.col(colStudents).Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	docs, err := decodeAll[studentDoc](ctx, cur)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Student, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.model())
	}
	return out, nil
}

func (s *Store) UpdateStudent(ctx context.Context, st domain.Student) (domain.Student, error) {
	var doc studentDoc
	err := s.col(colStudents).FindOneAndUpdate(s.bind(ctx), bson.M{"_id": st.ID},
		bson.M{"$set": bson.M{"name": st.Name, "rollNumber": st.RollNumber, "email": st.Email, "updatedAt": now()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&doc)
	if err != nil {
		return domain.Student{}, mapErr(err)
	}
	return doc.model(), nil
}

func (s *Store) DeleteStudent(ctx context.Context, id string) error {
	ctx = s.bind(ctx)
	res, err := s.col(colStudents).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	if _, err := s.col(colEnrollments).DeleteMany(ctx, bson.M{"studentId": id}); err != nil {
		return err
	}
	_, err = s.col(colAttendances).DeleteMany(ctx, bson.M{"studentId": id})
	return err
}

// ---------- enrollments ----------

func (s *Store) enrollments(ctx context.Context, filter bson.M) ([]enrollmentDoc, error) {
	cur, err := s.col(colEnrollments).Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}))
	if err != nil {
		return nil, err
	}
	return decodeAll[enrollmentDoc](ctx, cur)
}

func (s *Store) StudentsInClass(ctx context.Context, classID string) ([]domain.Student, error) {
	ctx = s.bind(ctx)
	links, err := s.enrollments(ctx, bson.M{"classId": classID})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(links))
	for _, l := range links {
		ids = append(ids, l.StudentID)
	}
	found, err := s.findStudents(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.Student, len(found))
	for _, st := range found {
		byID[st.ID] = st
	}
	out := make([]domain.Student, 0, len(ids))
	for _, id := range ids {
		if st, ok := byID[id]; ok {
			out = append(out, st)
		}
	}
	return out, nil
}

func (s *Store) ClassesForStudent(ctx context.Context, studentID string) ([]domain.Class, error) {
	ctx = s.bind(ctx)
	links, err := s.enrollments(ctx, bson.M{"studentId": studentID})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(links))
	for _, l := range links {
		ids = append(ids, l.ClassID)
	}
	cur, err := s.col(colClasses).Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	docs, err := decodeAll[classDoc](ctx, cur)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.Class, len(docs))
	for _, d := range docs {
		byID[d.ID] = d.model()
	}
	out := make([]domain.Class, 0, len(ids))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) IsEnrolled(ctx context.Context, studentID, classID string) (bool, error) {
	n, err := s.col(colEnrollments).CountDocuments(s.bind(ctx), bson.M{"studentId": studentID, "classId": classID}, options.Count().SetLimit(1))
	return n > 0, err
}

func (s *Store) DeleteEnrollmentsForStudent(ctx context.Context, studentID string) error {
	_, err := s.col(colEnrollments).DeleteMany(s.bind(ctx), bson.M{"studentId": studentID})
	return err
}

func (s *Store) InsertEnrollment(ctx context.Context, e domain.Enrollment) (domain.Enrollment, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	t := now()
	doc := enrollmentDoc{ID: e.ID, StudentID: e.StudentID, ClassID: e.ClassID, Seq: t.UnixNano(), CreatedAt: t, UpdatedAt: t}
	if _, err := s.col(colEnrollments).InsertOne(s.bind(ctx), doc); err != nil {
		return domain.Enrollment{}, mapErr(err)
	}
	e.CreatedAt, e.UpdatedAt = t, t
	return e, nil
}

// ---------- attendance ----------

// UpsertAttendance retries once when a concurrent insert of the same triple wins
// the unique index; the retry then matches the existing document and updates it.
func (s *Store) UpsertAttendance(ctx context.Context, rec domain.AttendanceRecord) (domain.AttendanceRecord, error) {
	ctx = s.bind(ctx)
	day := domain.StartOfDay(rec.Date)
	filter := bson.M{"classId": rec.ClassID, "studentId": rec.StudentID, "date": day}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		t := now()
		update := bson.M{
			"$set":         bson.M{"status": string(rec.Status), "updatedAt": t},
			"$setOnInsert": bson.M{"_id": uuid.NewString(), "createdAt": t},
		}
		var doc attendanceDoc
		err := s.col(colAttendances).FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
		if err == nil {
			return doc.model(), nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return domain.AttendanceRecord{}, mapErr(err)
		}
		lastErr = err
	}
	return domain.AttendanceRecord{}, mapErr(lastErr)
}

func (s *Store) ListAttendance(ctx context.Context, f domain.AttendanceFilter) ([]domain.AttendanceRecord, error) {
	ctx = s.bind(ctx)
	filter := bson.M{}
	if f.ClassID != "" {
		filter["classId"] = f.ClassID
	}
	if f.StudentID != "" {
		filter["studentId"] = f.StudentID
	}
	dateRange := bson.M{}
	if !f.From.IsZero() {
		dateRange["$gte"] = domain.StartOfDay(f.From)
	}
	if !f.To.IsZero() {
		dateRange["$lt"] = domain.StartOfDay(f.To)
	}
	if len(dateRange) > 0 {
		filter["date"] = dateRange
	}
	cur, err := s.col(colAttendances).Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "date", Value: 1}, {Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	docs, err := decodeAll[attendanceDoc](ctx, cur)
	if err != nil {
		return nil, err
	}
	out := make([]domain.AttendanceRecord, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.model())
	}
	return out, nil
}

func (s *Store) GetAttendance(ctx context.Context, id string) (domain.AttendanceRecord, error) {
	var doc attendanceDoc
	if err := s.col(colAttendances).FindOne(s.bind(ctx), bson.M{"_id": id}).Decode(&doc); err != nil {
		return domain.AttendanceRecord{}, mapErr(err)
	}
	return doc.model(), nil
}

func (s *Store) DeleteAttendance(ctx context.Context, id string) error {
	res, err := s.col(colAttendances).DeleteOne(s.bind(ctx), bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ---------- users ----------

func (s *Store) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	t := now()
	doc := userDoc{ID: u.ID, Name: u.Name, Email: u.Email, PasswordHash: u.PasswordHash, Role: string(u.Role), CreatedAt: t, UpdatedAt: t}
	if _, err := s.col(colUsers).InsertOne(s.bind(ctx), doc); err != nil {
		return domain.User{}, mapErr(err)
	}
	return doc.model(), nil
}

func (s *Store) GetUser(ctx context.Context, id string) (domain.User, error) {
	var doc userDoc
	if err := s.col(colUsers).FindOne(s.bind(ctx), bson.M{"_id": id}).Decode(&doc); err != nil {
		return domain.User{}, mapErr(err)
	}
	return doc.model(), nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	var doc userDoc
	if err := s.col(colUsers).FindOne(s.bind(ctx), bson.M{"email": email}).Decode(&doc); err != nil {
		return domain.User{}, mapErr(err)
	}
	return doc.model(), nil
}
