package repositories_test

import (
	"context"
	"math"
	"testing"
	"time"

	"taskboard/backend/internal/database"
	"taskboard/backend/internal/models"
	"taskboard/backend/internal/repositories"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	pool, err := database.NewDatabasePool(&database.PoolConfig{
		Driver:       database.DriverSQLite,
		DSN:          ":memory:",
		MaxOpenConns: 1,
		LogLevel:     logger.Silent,
	})
	require.NoError(t, err)
	require.NoError(t, pool.AutoMigrate())
	t.Cleanup(func() { pool.Close() })

	return pool.DB
}

func createUser(t *testing.T, repo *repositories.UserRepository, email string) *models.User {
	t.Helper()
	user := &models.User{Name: "User " + email, Email: email, Password: "hash"}
	require.NoError(t, repo.Create(context.Background(), user))
	return user
}

type taskSeed struct {
	title    string
	desc     string
	status   models.TaskStatus
	priority models.TaskPriority
	due      *time.Time
	age      time.Duration
}

func seedTasks(t *testing.T, repo *repositories.TaskRepository, owner uuid.UUID, seeds []taskSeed) []models.Task {
	t.Helper()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	out := make([]models.Task, 0, len(seeds))
	for _, s := range seeds {
		task := models.Task{
			UserID:      owner,
			Title:       s.title,
			Description: s.desc,
			Status:      s.status,
			Priority:    s.priority,
			DueDate:     s.due,
			CreatedAt:   base.Add(-s.age),
		}
		require.NoError(t, repo.Create(context.Background(), &task))
		out = append(out, task)
	}
	return out
}

func listQuery(owner uuid.UUID) models.TaskQuery {
	return models.TaskQuery{OwnerID: owner, Sort: models.SortNewest, Page: 1, Limit: models.DefaultPageLimit}
}

func titles(page *models.TaskPage) []string {
	out := make([]string, 0, len(page.Tasks))
	for _, task := range page.Tasks {
		out = append(out, task.Title)
	}
	return out
}

func TestUserRepository_CreateAndFind(t *testing.T) {
	db := setupTestDB(t)
	repo := repositories.NewUserRepository(db, nil)
	ctx := context.Background()

	user := createUser(t, repo, "  Ada@Example.com ")
	assert.Equal(t, "ada@example.com", user.Email)

	byEmail, err := repo.FindByEmail(ctx, "ADA@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)

	byID, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", byID.Email)

	_, err = repo.FindByID(ctx, uuid.Must(uuid.NewV4()))
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	_, err = repo.FindByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestUserRepository_DuplicateEmail(t *testing.T) {
	db := setupTestDB(t)
	repo := repositories.NewUserRepository(db, nil)

	createUser(t, repo, "ada@example.com")

	err := repo.Create(context.Background(), &models.User{Name: "Other", Email: "ADA@example.com", Password: "hash"})
	assert.ErrorIs(t, err, repositories.ErrDuplicateEmail)
}

func TestTaskRepository_OwnerIsolation(t *testing.T) {
	db := setupTestDB(t)
	users := repositories.NewUserRepository(db, nil)
	tasks := repositories.NewTaskRepository(db, nil)
	ctx := context.Background()

	alice := createUser(t, users, "alice@example.com")
	bob := createUser(t, users, "bob@example.com")

	aliceTasks := seedTasks(t, tasks, alice.ID, []taskSeed{
		{title: "Alice one", desc: "shared words", age: time.Hour},
		{title: "Alice two", desc: "shared words", age: 2 * time.Hour},
	})
	seedTasks(t, tasks, bob.ID, []taskSeed{
		{title: "Bob one", desc: "shared words", age: time.Hour},
	})

	page, err := tasks.List(ctx, listQuery(alice.ID))
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice one", "Alice two"}, titles(page))
	assert.EqualValues(t, 2, page.Pagination.Total)

	q := listQuery(bob.ID)
	q.Search = "shared"
	page, err = tasks.List(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []string{"Bob one"}, titles(page))

	_, err = tasks.FindOwned(ctx, bob.ID, aliceTasks[0].ID)
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	stolen := aliceTasks[0]
	stolen.UserID = bob.ID
	stolen.Title = "hijacked"
	assert.ErrorIs(t, tasks.UpdateOwned(ctx, &stolen), repositories.ErrNotFound)

	assert.ErrorIs(t, tasks.DeleteOwned(ctx, bob.ID, aliceTasks[0].ID), repositories.ErrNotFound)

	still, err := tasks.FindOwned(ctx, alice.ID, aliceTasks[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice one", still.Title)
}

func TestTaskRepository_Filters(t *testing.T) {
	db := setupTestDB(t)
	users := repositories.NewUserRepository(db, nil)
	tasks := repositories.NewTaskRepository(db, nil)
	ctx := context.Background()

	owner := createUser(t, users, "owner@example.com")
	seedTasks(t, tasks, owner.ID, []taskSeed{
		{title: "Done high", desc: "d", status: models.StatusCompleted, priority: models.PriorityHigh, age: 1 * time.Hour},
		{title: "Open high", desc: "d", status: models.StatusPending, priority: models.PriorityHigh, age: 2 * time.Hour},
		{title: "Open low", desc: "d", status: models.StatusPending, priority: models.PriorityLow, age: 3 * time.Hour},
	})

	q := listQuery(owner.ID)
	q.Status = models.StatusPending
	page, err := tasks.List(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []string{"Open high", "Open low"}, titles(page))

	q.Priority = models.PriorityHigh
	page, err = tasks.List(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []string{"Open high"}, titles(page))

	q = listQuery(owner.ID)
	q.Status = models.TaskStatus("Archived")
	q.Priority = models.TaskPriority("Urgent")
	page, err = tasks.List(ctx, q)
	require.NoError(t, err)
	assert.Len(t, page.Tasks, 3, "invalid filters are ignored")
}

func TestTaskRepository_SearchIsLiteralAndCaseInsensitive(t *testing.T) {
	db := setupTestDB(t)
	users := repositories.NewUserRepository(db, nil)
	tasks := repositories.NewTaskRepository(db, nil)
	ctx := context.Background()

	owner := createUser(t, users, "owner@example.com")
	seedTasks(t, tasks, owner.ID, []taskSeed{
		{title: "Quarterly REPORT", desc: "numbers", age: 1 * time.Hour},
		{title: "100% done", desc: "finished", age: 2 * time.Hour},
		{title: "100 percent", desc: "not quite", age: 3 * time.Hour},
		{title: "snake_case", desc: "naming", age: 4 * time.Hour},
		{title: "snakeXcase", desc: "naming", age: 5 * time.Hour},
		{title: "plan", desc: "step a.b* then c", age: 6 * time.Hour},
		{title: "plan b", desc: "aXbb", age: 7 * time.Hour},
		{title: `back\slash`, desc: "path", age: 8 * time.Hour},
	})

	tests := []struct {
		search   string
		expected []string
	}{
		{"report", []string{"Quarterly REPORT"}},
		{"%", []string{"100% done"}},
		{"_", []string{"snake_case"}},
		{"a.b*", []string{"plan"}},
		{`\`, []string{`back\slash`}},
		{"   ", []string{"Quarterly REPORT", "100% done", "100 percent", "snake_case", "snakeXcase", "plan", "plan b", `back\slash`}},
		{"nothing matches", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.search, func(t *testing.T) {
			q := listQuery(owner.ID)
			q.Search = tt.search
			page, err := tasks.List(ctx, q)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, titles(page))
		})
	}
}

func TestTaskRepository_Sorting(t *testing.T) {
	db := setupTestDB(t)
	users := repositories.NewUserRepository(db, nil)
	tasks := repositories.NewTaskRepository(db, nil)
	ctx := context.Background()

	day := func(d int) *time.Time {
		v := time.Date(2026, 4, d, 0, 0, 0, 0, time.UTC)
		return &v
	}

	owner := createUser(t, users, "owner@example.com")
	seedTasks(t, tasks, owner.ID, []taskSeed{
		{title: "newest low", desc: "d", priority: models.PriorityLow, due: day(20), age: 1 * time.Hour},
		{title: "middle high", desc: "d", priority: models.PriorityHigh, due: day(10), age: 2 * time.Hour},
		{title: "old medium", desc: "d", priority: models.PriorityMedium, due: day(15), age: 3 * time.Hour},
		{title: "oldest high", desc: "d", priority: models.PriorityHigh, due: day(5), age: 4 * time.Hour},
	})

	tests := []struct {
		sort     models.TaskSort
		expected []string
	}{
		{models.SortNewest, []string{"newest low", "middle high", "old medium", "oldest high"}},
		{models.SortOldest, []string{"oldest high", "old medium", "middle high", "newest low"}},
		{models.SortDueSoon, []string{"oldest high", "middle high", "old medium", "newest low"}},
		{models.SortPriority, []string{"middle high", "oldest high", "old medium", "newest low"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.sort), func(t *testing.T) {
			q := listQuery(owner.ID)
			q.Sort = tt.sort
			page, err := tasks.List(ctx, q)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, titles(page))
		})
	}
}

func TestTaskRepository_Pagination(t *testing.T) {
	db := setupTestDB(t)
	users := repositories.NewUserRepository(db, nil)
	tasks := repositories.NewTaskRepository(db, nil)
	ctx := context.Background()

	owner := createUser(t, users, "owner@example.com")
	seeds := make([]taskSeed, 0, 5)
	for i, title := range []string{"t1", "t2", "t3", "t4", "t5"} {
		seeds = append(seeds, taskSeed{title: title, desc: "d", age: time.Duration(i) * time.Minute})
	}
	seedTasks(t, tasks, owner.ID, seeds)

	q := listQuery(owner.ID)
	q.Limit = 2
	q.Page = 3
	page, err := tasks.List(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []string{"t5"}, titles(page))
	assert.Equal(t, models.Pagination{Page: 3, Limit: 2, Total: 5, Pages: 3}, page.Pagination)

	q.Page = 4
	page, err = tasks.List(ctx, q)
	require.NoError(t, err)
	assert.Empty(t, page.Tasks)
	assert.NotNil(t, page.Tasks)
	assert.EqualValues(t, 5, page.Pagination.Total)

	q.Page = math.MaxInt
	page, err = tasks.List(ctx, q)
	require.NoError(t, err)
	assert.Empty(t, page.Tasks, "a page past the end must not wrap around to the first rows")
	assert.EqualValues(t, 5, page.Pagination.Total)

	empty, err := tasks.List(ctx, listQuery(uuid.Must(uuid.NewV4())))
	require.NoError(t, err)
	assert.Equal(t, models.Pagination{Page: 1, Limit: models.DefaultPageLimit, Total: 0, Pages: 1}, empty.Pagination)
}

func TestTaskRepository_UpdateAndDelete(t *testing.T) {
	db := setupTestDB(t)
	users := repositories.NewUserRepository(db, nil)
	tasks := repositories.NewTaskRepository(db, nil)
	ctx := context.Background()

	owner := createUser(t, users, "owner@example.com")
	created := seedTasks(t, tasks, owner.ID, []taskSeed{{title: "Draft", desc: "first", age: time.Hour}})[0]
	assert.Equal(t, models.StatusPending, created.Status)
	assert.Equal(t, models.PriorityMedium, created.Priority)

	created.Title = "Final"
	created.Status = models.StatusCompleted
	require.NoError(t, tasks.UpdateOwned(ctx, &created))

	got, err := tasks.FindOwned(ctx, owner.ID, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Final", got.Title)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.Nil(t, got.DueDate)

	require.NoError(t, tasks.DeleteOwned(ctx, owner.ID, created.ID))
	_, err = tasks.FindOwned(ctx, owner.ID, created.ID)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
	assert.ErrorIs(t, tasks.DeleteOwned(ctx, owner.ID, created.ID), repositories.ErrNotFound)
}

type recordingObserver struct {
	ops []string
}

func (r *recordingObserver) ObserveDB(op string, fn func() error) error {
	r.ops = append(r.ops, op)
	return fn()
}

func TestTaskRepository_ReportsOperations(t *testing.T) {
	db := setupTestDB(t)
	obs := &recordingObserver{}
	users := repositories.NewUserRepository(db, obs)
	tasks := repositories.NewTaskRepository(db, obs)

	owner := createUser(t, users, "owner@example.com")
	_, err := tasks.List(context.Background(), listQuery(owner.ID))
	require.NoError(t, err)

	assert.Equal(t, []string{"users.create", "tasks.list"}, obs.ops)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `100\%`, repositories.EscapeLike("100%"))
	assert.Equal(t, `a\_b`, repositories.EscapeLike("a_b"))
	assert.Equal(t, `c:\\tmp`, repositories.EscapeLike(`c:\tmp`))
	assert.Equal(t, "a.b*", repositories.EscapeLike("a.b*"))
}
