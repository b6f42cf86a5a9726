package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/basantashrestha/seepalaya/core"
	"github.com/basantashrestha/seepalaya/core/account"
	"github.com/basantashrestha/seepalaya/core/classroom"
)

type classroomRepository struct {
	db *DB
}

var _ classroom.Repository = (*classroomRepository)(nil)

func NewClassroomRepository(db *DB) classroom.Repository {
	return &classroomRepository{db: db}
}

func (repo *classroomRepository) CreateClassroom(ctx context.Context, room classroom.Classroom, _ ...core.DBExecutor) (classroom.Classroom, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, r := range repo.db.rooms {
		if r.Code == room.Code {
			return classroom.Classroom{}, errors.Wrap(core.ErrUniqueViolation, "creating classroom")
		}
	}
	if room.ID == "" {
		room.ID = uuid.New().String()
	}
	repo.db.rooms[room.ID] = &room
	return room, nil
}

func (repo *classroomRepository) GetClassroom(ctx context.Context, id string, _ ...core.DBExecutor) (classroom.Classroom, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if room, ok := repo.db.rooms[id]; ok {
		return *room, nil
	}
	return classroom.Classroom{}, classroom.ErrNotFound
}

func (repo *classroomRepository) GetClassroomByCode(ctx context.Context, code string, _ ...core.DBExecutor) (classroom.Classroom, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, room := range repo.db.rooms {
		if room.Code == code {
			return *room, nil
		}
	}
	return classroom.Classroom{}, classroom.ErrNotFound
}

func (repo *classroomRepository) QueryTeacherClassrooms(ctx context.Context, teacherID string, _ ...core.DBExecutor) ([]classroom.Classroom, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var rooms []classroom.Classroom
	for _, room := range repo.db.rooms {
		if room.TeacherID.String == teacherID {
			rooms = append(rooms, *room)
		}
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].CreatedAt.After(rooms[j].CreatedAt) })
	return rooms, nil
}

func (repo *classroomRepository) UpdateClassroom(ctx context.Context, room classroom.Classroom, _ ...core.DBExecutor) (classroom.Classroom, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.rooms[room.ID]; !ok {
		return classroom.Classroom{}, classroom.ErrNotFound
	}
	repo.db.rooms[room.ID] = &room
	return room, nil
}

func (repo *classroomRepository) DeleteClassroom(ctx context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	delete(repo.db.rooms, id)
	delete(repo.db.members, id)
	return nil
}

func (repo *classroomRepository) CodeExists(ctx context.Context, code string, _ ...core.DBExecutor) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, room := range repo.db.rooms {
		if room.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (repo *classroomRepository) AddMember(ctx context.Context, classroomID, accountID string, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	set, ok := repo.db.members[classroomID]
	if !ok {
		set = make(map[string]bool)
		repo.db.members[classroomID] = set
	}
	if set[accountID] {
		return errors.Wrap(core.ErrUniqueViolation, "adding classroom member")
	}
	set[accountID] = true
	return nil
}

func (repo *classroomRepository) RemoveMember(ctx context.Context, classroomID, accountID string, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	delete(repo.db.members[classroomID], accountID)
	return nil
}

func (repo *classroomRepository) IsMember(ctx context.Context, classroomID, accountID string, _ ...core.DBExecutor) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.db.members[classroomID][accountID], nil
}

func (repo *classroomRepository) QueryMembers(ctx context.Context, classroomID string, _ ...core.DBExecutor) ([]account.Account, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var accts []account.Account
	for id := range repo.db.members[classroomID] {
		if a, ok := repo.db.accounts[id]; ok {
			accts = append(accts, *a)
		}
	}
	sort.Slice(accts, func(i, j int) bool { return accts[i].Username < accts[j].Username })
	return accts, nil
}
