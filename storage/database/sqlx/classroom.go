package sqlxrepos

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/basantashrestha/seepalaya/core"
	"github.com/basantashrestha/seepalaya/core/account"
	"github.com/basantashrestha/seepalaya/core/classroom"
)

type classroomRow struct {
	ID        string      `db:"id"`
	Title     string      `db:"title"`
	Code      string      `db:"code"`
	TeacherID null.String `db:"teacher_id"`
	CreatedAt null.Time   `db:"created_at"`
	UpdatedAt null.Time   `db:"updated_at"`
}

func (r classroomRow) toClassroom() classroom.Classroom {
	return classroom.Classroom{
		ID:        r.ID,
		Title:     r.Title,
		Code:      r.Code,
		TeacherID: r.TeacherID,
		CreatedAt: r.CreatedAt.Time,
		UpdatedAt: r.UpdatedAt.Time,
	}
}

const classroomCols = `id, title, code, teacher_id, created_at, updated_at`

type classroomRepository struct {
	db core.DBExecutor
}

var _ classroom.Repository = (*classroomRepository)(nil)

func NewClassroomRepository(db core.DBExecutor) classroom.Repository {
	return &classroomRepository{db: db}
}

func (repo *classroomRepository) CreateClassroom(ctx context.Context, room classroom.Classroom, exec ...core.DBExecutor) (classroom.Classroom, error) {
	ex := getExec(repo.db, exec)
	if room.ID == "" {
		room.ID = uuid.New().String()
	}
	q := `INSERT INTO classroom (id, title, code, teacher_id, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := ex.ExecContext(ctx, q, room.ID, room.Title, room.Code, room.TeacherID, room.CreatedAt, room.UpdatedAt)
	if err != nil {
		return classroom.Classroom{}, wrapWriteErr(err, "creating classroom")
	}
	return room, nil
}

func (repo *classroomRepository) GetClassroom(ctx context.Context, id string, exec ...core.DBExecutor) (classroom.Classroom, error) {
	return repo.get(ctx, `id = $1`, id, exec)
}

func (repo *classroomRepository) GetClassroomByCode(ctx context.Context, code string, exec ...core.DBExecutor) (classroom.Classroom, error) {
	return repo.get(ctx, `code = $1`, code, exec)
}

func (repo *classroomRepository) get(ctx context.Context, where, arg string, exec []core.DBExecutor) (classroom.Classroom, error) {
	ex := getExec(repo.db, exec)
	var row classroomRow
	q := fmt.Sprintf(`SELECT %s FROM classroom WHERE %s`, classroomCols, where)
	if err := ex.GetContext(ctx, &row, q, arg); err != nil {
		if isNoRows(err) {
			return classroom.Classroom{}, classroom.ErrNotFound
		}
		return classroom.Classroom{}, errors.Wrap(err, "getting classroom")
	}
	return row.toClassroom(), nil
}

func (repo *classroomRepository) QueryTeacherClassrooms(ctx context.Context, teacherID string, exec ...core.DBExecutor) ([]classroom.Classroom, error) {
	ex := getExec(repo.db, exec)
	var rows []classroomRow
	q := fmt.Sprintf(`SELECT %s FROM classroom WHERE teacher_id = $1 ORDER BY created_at DESC`, classroomCols)
	if err := ex.SelectContext(ctx, &rows, q, teacherID); err != nil {
		return nil, errors.Wrap(err, "querying classrooms")
	}
	rooms := make([]classroom.Classroom, 0, len(rows))
	for _, row := range rows {
		rooms = append(rooms, row.toClassroom())
	}
	return rooms, nil
}

func (repo *classroomRepository) UpdateClassroom(ctx context.Context, room classroom.Classroom, exec ...core.DBExecutor) (classroom.Classroom, error) {
	ex := getExec(repo.db, exec)
	q := `UPDATE classroom SET title = $2, updated_at = $3 WHERE id = $1`
	res, err := ex.ExecContext(ctx, q, room.ID, room.Title, room.UpdatedAt)
	if err != nil {
		return classroom.Classroom{}, errors.Wrap(err, "updating classroom")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return classroom.Classroom{}, classroom.ErrNotFound
	}
	return room, nil
}

func (repo *classroomRepository) DeleteClassroom(ctx context.Context, id string, exec ...core.DBExecutor) error {
	ex := getExec(repo.db, exec)
	_, err := ex.ExecContext(ctx, `DELETE FROM classroom WHERE id = $1`, id)
	return errors.Wrap(err, "deleting classroom")
}

func (repo *classroomRepository) CodeExists(ctx context.Context, code string, exec ...core.DBExecutor) (bool, error) {
	ex := getExec(repo.db, exec)
	var exists bool
	err := ex.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM classroom WHERE code = $1)`, code)
	return exists, errors.Wrap(err, "checking classroom code")
}

func (repo *classroomRepository) AddMember(ctx context.Context, classroomID, accountID string, exec ...core.DBExecutor) error {
	ex := getExec(repo.db, exec)
	q := `INSERT INTO classroom_member (classroom_id, account_id) VALUES ($1, $2)`
	_, err := ex.ExecContext(ctx, q, classroomID, accountID)
	return wrapWriteErr(err, "adding classroom member")
}

func (repo *classroomRepository) RemoveMember(ctx context.Context, classroomID, accountID string, exec ...core.DBExecutor) error {
	ex := getExec(repo.db, exec)
	q := `DELETE FROM classroom_member WHERE classroom_id = $1 AND account_id = $2`
	_, err := ex.ExecContext(ctx, q, classroomID, accountID)
	return errors.Wrap(err, "removing classroom member")
}

func (repo *classroomRepository) IsMember(ctx context.Context, classroomID, accountID string, exec ...core.DBExecutor) (bool, error) {
	ex := getExec(repo.db, exec)
	var exists bool
	q := `SELECT EXISTS(SELECT 1 FROM classroom_member WHERE classroom_id = $1 AND account_id = $2)`
	err := ex.GetContext(ctx, &exists, q, classroomID, accountID)
	return exists, errors.Wrap(err, "checking classroom member")
}

func (repo *classroomRepository) QueryMembers(ctx context.Context, classroomID string, exec ...core.DBExecutor) ([]account.Account, error) {
	ex := getExec(repo.db, exec)
	var rows []accountRow
	q := fmt.Sprintf(`
SELECT %s FROM account a
JOIN classroom_member m ON m.account_id = a.id
WHERE m.classroom_id = $1
ORDER BY a.username`, prefixCols("a", accountCols))
	if err := ex.SelectContext(ctx, &rows, q, classroomID); err != nil {
		return nil, errors.Wrap(err, "querying classroom members")
	}
	accts := make([]account.Account, 0, len(rows))
	for _, row := range rows {
		accts = append(accts, row.toAccount())
	}
	return accts, nil
}
