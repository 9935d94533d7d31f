package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/bigkaa/goelection/election-api/internal/domain/model"
	"github.com/bigkaa/goelection/election-api/internal/domain/rbac"
	"github.com/bigkaa/goelection/election-api/internal/repository"
)

// --- users ---

type userRepo struct {
	a   access
	now func() time.Time
}

func (r *userRepo) Create(_ context.Context, u *model.User) error {
	return r.a.with(func(st *state) error {
		for _, existing := range st.users {
			if existing.Email == u.Email {
				return repository.ErrConflict
			}
		}
		st.seqUser++
		u.ID = st.seqUser
		u.CreatedAt = r.now().UTC()
		st.users[u.ID] = copyUser(u)
		return nil
	})
}

func (r *userRepo) GetByID(_ context.Context, id int64) (*model.User, error) {
	var out *model.User
	err := r.a.with(func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = copyUser(u)
		return nil
	})
	return out, err
}

func (r *userRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	var out *model.User
	err := r.a.with(func(st *state) error {
		for _, u := range st.users {
			if u.Email == email {
				out = copyUser(u)
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

// LockByID проверяет существование: транзакции и так сериализованы.
func (r *userRepo) LockByID(_ context.Context, id int64) error {
	return r.a.with(func(st *state) error {
		if _, ok := st.users[id]; !ok {
			return repository.ErrNotFound
		}
		return nil
	})
}

func (r *userRepo) SetOTP(_ context.Context, id int64, code, purpose string, expiresAt time.Time) error {
	return r.a.with(func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return repository.ErrNotFound
		}
		u.OTPCode = &code
		u.OTPPurpose = &purpose
		u.OTPExpiresAt = &expiresAt
		return nil
	})
}

func (r *userRepo) ConsumeOTP(_ context.Context, id int64, code, purpose string, now time.Time) (bool, error) {
	consumed := false
	err := r.a.with(func(st *state) error {
		u, ok := st.users[id]
		if !ok || u.OTPCode == nil || u.OTPPurpose == nil || u.OTPExpiresAt == nil {
			return nil
		}
		if *u.OTPCode != code || *u.OTPPurpose != purpose || now.After(*u.OTPExpiresAt) {
			return nil
		}
		u.OTPCode, u.OTPPurpose, u.OTPExpiresAt = nil, nil, nil
		consumed = true
		return nil
	})
	return consumed, err
}

func (r *userRepo) ClearExpiredOTP(_ context.Context, now time.Time) (int, error) {
	cleared := 0
	err := r.a.with(func(st *state) error {
		for _, u := range st.users {
			if u.OTPExpiresAt != nil && u.OTPExpiresAt.Before(now) {
				u.OTPCode, u.OTPPurpose, u.OTPExpiresAt = nil, nil, nil
				cleared++
			}
		}
		return nil
	})
	return cleared, err
}

func (r *userRepo) UpdatePassword(_ context.Context, id int64, passwordHash string) error {
	return r.a.with(func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return repository.ErrNotFound
		}
		u.PasswordHash = passwordHash
		return nil
	})
}

func (r *userRepo) UpdateProfile(_ context.Context, id int64, name, details string) error {
	return r.a.with(func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return repository.ErrNotFound
		}
		u.Name = name
		u.ProfileDetails = details
		return nil
	})
}

func (r *userRepo) Delete(_ context.Context, id int64) error {
	return r.a.with(func(st *state) error {
		if _, ok := st.users[id]; !ok {
			return repository.ErrNotFound
		}
		for _, v := range st.votes {
			if v.VoterUserID == id {
				return repository.ErrReferenced
			}
		}
		for _, c := range st.candidates {
			if c.UserID == id {
				return repository.ErrReferenced
			}
		}
		delete(st.users, id)
		delete(st.userRoles, id)
		for nid, n := range st.notifications {
			if n.UserID == id {
				delete(st.notifications, nid)
			}
		}
		return nil
	})
}

func (r *userRepo) List(_ context.Context) ([]*model.UserWithRole, error) {
	var out []*model.UserWithRole
	err := r.a.with(func(st *state) error {
		for _, id := range sortedIDs(st.users) {
			u := st.users[id]
			out = append(out, &model.UserWithRole{
				ID:        u.ID,
				Name:      u.Name,
				Email:     u.Email,
				IsActive:  u.IsActive,
				Roles:     roleNames(st, id),
				CreatedAt: u.CreatedAt,
			})
		}
		return nil
	})
	return out, err
}

func (r *userRepo) ListIDs(_ context.Context) ([]int64, error) {
	var out []int64
	err := r.a.with(func(st *state) error {
		out = sortedIDs(st.users)
		return nil
	})
	return out, err
}

func (r *userRepo) Count(_ context.Context) (int, error) {
	var n int
	err := r.a.with(func(st *state) error {
		n = len(st.users)
		return nil
	})
	return n, err
}

// --- roles ---

type roleRepo struct {
	a access
}

func roleNames(st *state, userID int64) []string {
	names := make([]string, 0, len(st.userRoles[userID]))
	for rid := range st.userRoles[userID] {
		names = append(names, st.roles[rid].Name)
	}
	sort.Strings(names)
	return names
}

func (r *roleRepo) GetByName(_ context.Context, name string) (*model.Role, error) {
	var out *model.Role
	err := r.a.with(func(st *state) error {
		for _, role := range st.roles {
			if role.Name == name {
				rc := *role
				out = &rc
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

func (r *roleRepo) GrantsForUser(_ context.Context, userID int64) ([]rbac.Grant, error) {
	var out []rbac.Grant
	err := r.a.with(func(st *state) error {
		for rid := range st.userRoles[userID] {
			out = append(out, rbac.Grant{
				Role:        st.roles[rid].Name,
				Permissions: append([]string(nil), st.rolePerms[rid]...),
			})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Role < out[j].Role })
		return nil
	})
	return out, err
}

func (r *roleRepo) AddUserRole(_ context.Context, userID, roleID int64) error {
	return r.a.with(func(st *state) error {
		if _, ok := st.users[userID]; !ok {
			return repository.ErrNotFound
		}
		if _, ok := st.roles[roleID]; !ok {
			return repository.ErrNotFound
		}
		set, ok := st.userRoles[userID]
		if !ok {
			set = make(map[int64]struct{})
			st.userRoles[userID] = set
		}
		set[roleID] = struct{}{}
		return nil
	})
}

func (r *roleRepo) ClearUserRoles(_ context.Context, userID int64) error {
	return r.a.with(func(st *state) error {
		delete(st.userRoles, userID)
		return nil
	})
}

func (r *roleRepo) RoleNamesForUser(_ context.Context, userID int64) ([]string, error) {
	var out []string
	err := r.a.with(func(st *state) error {
		out = roleNames(st, userID)
		return nil
	})
	return out, err
}

func (r *roleRepo) UserIDsWithRole(_ context.Context, roleName string) ([]int64, error) {
	out := make([]int64, 0)
	err := r.a.with(func(st *state) error {
		for _, uid := range sortedIDs(st.userRoles) {
			for rid := range st.userRoles[uid] {
				if st.roles[rid].Name == roleName {
					out = append(out, uid)
					break
				}
			}
		}
		return nil
	})
	return out, err
}

// --- offices ---

type officeRepo struct {
	a   access
	now func() time.Time
}

func (r *officeRepo) Create(_ context.Context, o *model.Office) error {
	return r.a.with(func(st *state) error {
		st.seqOffice++
		o.ID = st.seqOffice
		o.CreatedAt = r.now().UTC()
		oc := *o
		st.offices[o.ID] = &oc
		return nil
	})
}

func (r *officeRepo) GetByID(_ context.Context, id int64) (*model.Office, error) {
	var out *model.Office
	err := r.a.with(func(st *state) error {
		o, ok := st.offices[id]
		if !ok {
			return repository.ErrNotFound
		}
		oc := *o
		out = &oc
		return nil
	})
	return out, err
}

func (r *officeRepo) ListActive(_ context.Context) ([]*model.Office, error) {
	var out []*model.Office
	err := r.a.with(func(st *state) error {
		for _, id := range sortedIDs(st.offices) {
			if o := st.offices[id]; o.IsActive {
				oc := *o
				out = append(out, &oc)
			}
		}
		return nil
	})
	return out, err
}

// --- candidates ---

type candidateRepo struct {
	a   access
	now func() time.Time
}

func (r *candidateRepo) Create(_ context.Context, c *model.Candidate) error {
	return r.a.with(func(st *state) error {
		if _, ok := st.users[c.UserID]; !ok {
			return repository.ErrNotFound
		}
		if _, ok := st.offices[c.OfficeID]; !ok {
			return repository.ErrNotFound
		}
		for _, existing := range st.candidates {
			if existing.UserID == c.UserID && existing.OfficeID == c.OfficeID {
				return repository.ErrConflict
			}
		}
		st.seqCandidate++
		c.ID = st.seqCandidate
		c.CreatedAt = r.now().UTC()
		cc := *c
		st.candidates[c.ID] = &cc
		return nil
	})
}

func (r *candidateRepo) GetByID(_ context.Context, id int64) (*model.Candidate, error) {
	var out *model.Candidate
	err := r.a.with(func(st *state) error {
		c, ok := st.candidates[id]
		if !ok {
			return repository.ErrNotFound
		}
		cc := *c
		out = &cc
		return nil
	})
	return out, err
}

func (r *candidateRepo) LatestByUser(_ context.Context, userID int64) (*model.Candidate, error) {
	var out *model.Candidate
	err := r.a.with(func(st *state) error {
		// ID растут монотонно, последняя заявка — с наибольшим ID
		for _, id := range sortedIDs(st.candidates) {
			if c := st.candidates[id]; c.UserID == userID {
				cc := *c
				out = &cc
			}
		}
		if out == nil {
			return repository.ErrNotFound
		}
		return nil
	})
	return out, err
}

func (r *candidateRepo) Exists(_ context.Context, userID, officeID int64) (bool, error) {
	found := false
	err := r.a.with(func(st *state) error {
		for _, c := range st.candidates {
			if c.UserID == userID && c.OfficeID == officeID {
				found = true
				break
			}
		}
		return nil
	})
	return found, err
}

func (r *candidateRepo) SetStatus(_ context.Context, id int64, status model.CandidateStatus) error {
	return r.a.with(func(st *state) error {
		c, ok := st.candidates[id]
		if !ok {
			return repository.ErrNotFound
		}
		c.Status = status
		return nil
	})
}

func (r *candidateRepo) IncrementVotes(_ context.Context, id int64) (int, error) {
	var count int
	err := r.a.with(func(st *state) error {
		c, ok := st.candidates[id]
		if !ok {
			return repository.ErrNotFound
		}
		c.VoteCount++
		count = c.VoteCount
		return nil
	})
	return count, err
}

func (r *candidateRepo) UpdateManifesto(_ context.Context, id int64, manifesto string) error {
	return r.a.with(func(st *state) error {
		c, ok := st.candidates[id]
		if !ok {
			return repository.ErrNotFound
		}
		c.Manifesto = manifesto
		return nil
	})
}

func (r *candidateRepo) Rank(_ context.Context, officeID int64, voteCount int) (int, error) {
	ahead := 0
	err := r.a.with(func(st *state) error {
		for _, c := range st.candidates {
			if c.OfficeID == officeID && c.VoteCount > voteCount {
				ahead++
			}
		}
		return nil
	})
	return ahead + 1, err
}

func candidateView(st *state, c *model.Candidate) *model.CandidateView {
	v := &model.CandidateView{Candidate: *c}
	if u, ok := st.users[c.UserID]; ok {
		v.UserName = u.Name
		v.UserEmail = u.Email
	}
	if o, ok := st.offices[c.OfficeID]; ok {
		v.OfficeTitle = o.Title
	}
	return v
}

func (r *candidateRepo) ListByStatus(_ context.Context, status model.CandidateStatus) ([]*model.CandidateView, error) {
	var out []*model.CandidateView
	err := r.a.with(func(st *state) error {
		for _, id := range sortedIDs(st.candidates) {
			if c := st.candidates[id]; c.Status == status {
				out = append(out, candidateView(st, c))
			}
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].OfficeID < out[j].OfficeID })
		return nil
	})
	return out, err
}

func (r *candidateRepo) TopApproved(_ context.Context, limit int) ([]*model.CandidateView, error) {
	var out []*model.CandidateView
	err := r.a.with(func(st *state) error {
		for _, id := range sortedIDs(st.candidates) {
			if c := st.candidates[id]; c.Status == model.CandidateApproved {
				out = append(out, candidateView(st, c))
			}
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].VoteCount > out[j].VoteCount })
		if len(out) > limit {
			out = out[:limit]
		}
		return nil
	})
	return out, err
}

func (r *candidateRepo) OwnerIDs(_ context.Context) ([]int64, error) {
	out := make([]int64, 0)
	err := r.a.with(func(st *state) error {
		seen := make(map[int64]struct{})
		for _, c := range st.candidates {
			seen[c.UserID] = struct{}{}
		}
		out = append(out, sortedIDs(seen)...)
		return nil
	})
	return out, err
}

func (r *candidateRepo) Count(_ context.Context) (int, error) {
	var n int
	err := r.a.with(func(st *state) error {
		n = len(st.candidates)
		return nil
	})
	return n, err
}

// --- votes ---

type voteRepo struct {
	a   access
	now func() time.Time
}

func (r *voteRepo) Create(_ context.Context, v *model.Vote) error {
	return r.a.with(func(st *state) error {
		if _, ok := st.users[v.VoterUserID]; !ok {
			return repository.ErrNotFound
		}
		if _, ok := st.candidates[v.CandidateID]; !ok {
			return repository.ErrNotFound
		}
		if _, ok := st.offices[v.OfficeID]; !ok {
			return repository.ErrNotFound
		}
		for _, existing := range st.votes {
			if existing.VoterUserID == v.VoterUserID && existing.OfficeID == v.OfficeID {
				return repository.ErrConflict
			}
		}
		st.seqVote++
		v.ID = st.seqVote
		v.CreatedAt = r.now().UTC()
		vc := *v
		st.votes[v.ID] = &vc
		return nil
	})
}

func (r *voteRepo) Exists(_ context.Context, voterID, officeID int64) (bool, error) {
	found := false
	err := r.a.with(func(st *state) error {
		for _, v := range st.votes {
			if v.VoterUserID == voterID && v.OfficeID == officeID {
				found = true
				break
			}
		}
		return nil
	})
	return found, err
}

func (r *voteRepo) OfficeIDsForVoter(_ context.Context, voterID int64) ([]int64, error) {
	out := make([]int64, 0)
	err := r.a.with(func(st *state) error {
		for _, v := range st.votes {
			if v.VoterUserID == voterID {
				out = append(out, v.OfficeID)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
		return nil
	})
	return out, err
}

func (r *voteRepo) CountForCandidate(_ context.Context, candidateID int64) (int, error) {
	n := 0
	err := r.a.with(func(st *state) error {
		for _, v := range st.votes {
			if v.CandidateID == candidateID {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *voteRepo) Count(_ context.Context) (int, error) {
	var n int
	err := r.a.with(func(st *state) error {
		n = len(st.votes)
		return nil
	})
	return n, err
}

// --- notifications ---

type notificationRepo struct {
	a   access
	now func() time.Time
}

func insertNotification(st *state, userID int64, message string, at time.Time) *model.Notification {
	st.seqNotification++
	n := &model.Notification{
		ID:      st.seqNotification,
		UserID:  userID,
		Message: message,
		SentAt:  at,
	}
	st.notifications[n.ID] = n
	return n
}

func (r *notificationRepo) Create(_ context.Context, n *model.Notification) error {
	return r.a.with(func(st *state) error {
		if _, ok := st.users[n.UserID]; !ok {
			return repository.ErrNotFound
		}
		stored := insertNotification(st, n.UserID, n.Message, r.now().UTC())
		*n = *stored
		return nil
	})
}

func (r *notificationRepo) CreateMany(_ context.Context, userIDs []int64, message string) (int, error) {
	n := 0
	err := r.a.with(func(st *state) error {
		at := r.now().UTC()
		for _, uid := range userIDs {
			if _, ok := st.users[uid]; !ok {
				return repository.ErrNotFound
			}
			insertNotification(st, uid, message, at)
			n++
		}
		return nil
	})
	return n, err
}

func (r *notificationRepo) ListForUser(_ context.Context, userID int64) ([]*model.Notification, error) {
	out := make([]*model.Notification, 0)
	err := r.a.with(func(st *state) error {
		ids := sortedIDs(st.notifications)
		for i := len(ids) - 1; i >= 0; i-- {
			if n := st.notifications[ids[i]]; n.UserID == userID {
				nc := *n
				out = append(out, &nc)
			}
		}
		return nil
	})
	return out, err
}

// --- audit ---

type auditRepo struct {
	a   access
	now func() time.Time
}

func (r *auditRepo) Append(_ context.Context, entry *model.AuditLog) error {
	return r.a.with(func(st *state) error {
		st.seqAudit++
		entry.ID = st.seqAudit
		entry.CreatedAt = r.now().UTC()
		ec := *entry
		st.audit = append(st.audit, &ec)
		return nil
	})
}

func (r *auditRepo) ListRecent(_ context.Context, limit int) ([]*model.AuditLog, error) {
	out := make([]*model.AuditLog, 0, limit)
	err := r.a.with(func(st *state) error {
		for i := len(st.audit) - 1; i >= 0 && len(out) < limit; i-- {
			ec := *st.audit[i]
			out = append(out, &ec)
		}
		return nil
	})
	return out, err
}
