package tests

import (
	"errors"
	"fmt"
	"testing"
)

func TestAdminRoutesRequireAdmin(t *testing.T) {
	env := setupTestEnv(t)

	user := env.newUser(t, "regular")

	_, err := user.adminMetrics()
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden: %v", err)
	}

	_, err = user.adminListUsers("/admin/users")
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden: %v", err)
	}

	err = user.setAdmin(user.userId, true)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden: %v", err)
	}

	unauthed := env.newClient()
	_, err = unauthed.adminMetrics()
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized: %v", err)
	}
}

func TestAdminMetrics(t *testing.T) {
	env := setupTestEnv(t)

	admin := env.adminClient(t)
	owner := env.newUser(t, "owner")
	reviewer := env.newUser(t, "reviewer")

	project, err := owner.createProject("Metrics Project", "", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := reviewer.addReview(project.Id, "solid", 4); err != nil {
		t.Fatal(err)
	}

	metrics, err := admin.adminMetrics()
	if err != nil {
		t.Fatal(err)
	}

	if metrics.TotalUsers != 3 || metrics.TotalProjects != 1 || metrics.TotalReviews != 1 {
		t.Fatalf("invalid totals %+v", metrics)
	}
	if metrics.NewUsers30d != 3 || metrics.NewProjects30d != 1 || metrics.NewReviews30d != 1 {
		t.Fatalf("invalid 30 day counts %+v", metrics)
	}
	if len(metrics.RecentReviews) != 1 {
		t.Fatalf("expected 1 recent review, got %d", len(metrics.RecentReviews))
	}
	recent := metrics.RecentReviews[0]
	if recent.ProjectTitle != "Metrics Project" || recent.Username != "reviewer" || recent.Rating != 4 {
		t.Fatalf("invalid recent review %+v", recent)
	}
}

func TestAdminListUsers(t *testing.T) {
	env := setupTestEnv(t)

	admin := env.adminClient(t)

	for i := 0; i < 5; i++ {
		env.newUser(t, fmt.Sprintf("user%d", i))
	}

	users, err := admin.adminListUsers("/admin/users")
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 6 {
		t.Fatalf("expected 6 users, got %d", len(users))
	}
	for _, user := range users {
		if user.Email == "" {
			t.Fatalf("user %v missing email", user.Username)
		}
	}

	page, err := admin.adminListUsers("/admin/users?limit=2&offset=1")
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 {
		t.Fatalf("expected 2 users, got %d", len(page))
	}

	_, err = admin.adminListUsers("/admin/users?limit=abc")
	if !errors.Is(err, ErrBadRequest) {
		t.Fatalf("invalid limit should be rejected: %v", err)
	}
}

func TestAdminListProjects(t *testing.T) {
	env := setupTestEnv(t)

	admin := env.adminClient(t)
	owner := env.newUser(t, "owner")
	reviewer := env.newUser(t, "reviewer")

	first, err := owner.createProject("First", "", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := owner.createProject("Second", "", nil, nil); err != nil {
		t.Fatal(err)
	}
	if err := reviewer.addReview(first.Id, "great", 5); err != nil {
		t.Fatal(err)
	}

	projects, err := admin.adminListProjects("/admin/projects")
	if err != nil {
		t.Fatal(err)
	}
	if len(projects) != 2 {
		t.Fatalf("expected 2 projects, got %d", len(projects))
	}

	byTitle := map[string]adminProjectData{}
	for _, project := range projects {
		if project.OwnerUsername != "owner" {
			t.Fatalf("invalid owner %+v", project)
		}
		byTitle[project.Title] = project
	}
	if byTitle["First"].ReviewCount != 1 || byTitle["First"].AvgRating != 5.0 {
		t.Fatalf("invalid review stats %+v", byTitle["First"])
	}
	if byTitle["Second"].ReviewCount != 0 {
		t.Fatalf("invalid review stats %+v", byTitle["Second"])
	}
}

func TestSetAdmin(t *testing.T) {
	env := setupTestEnv(t)

	admin := env.adminClient(t)
	user := env.newUser(t, "promoted")

	_, err := user.adminMetrics()
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden: %v", err)
	}

	if err := admin.setAdmin(user.userId, true); err != nil {
		t.Fatal(err)
	}
	if _, err := user.adminMetrics(); err != nil {
		t.Fatal(err)
	}

	if err := admin.setAdmin(user.userId, false); err != nil {
		t.Fatal(err)
	}
	_, err = user.adminMetrics()
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden after demotion: %v", err)
	}

	err = admin.setAdmin("00000000-0000-0000-0000-000000000000", true)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found: %v", err)
	}
}

func TestAdminDeleteUser(t *testing.T) {
	env := setupTestEnv(t)

	admin := env.adminClient(t)
	owner := env.newUser(t, "owner")
	doomed := env.newUser(t, "doomed")

	kept, err := owner.createProject("Kept Project", "", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := doomed.createProject("Doomed Project", "", []string{"https://img.example.com/1.png"}, []string{"go"}); err != nil {
		t.Fatal(err)
	}
	if err := doomed.addReview(kept.Id, "will vanish", 3); err != nil {
		t.Fatal(err)
	}
	if err := owner.addContributor(kept.Id, "doomed"); err != nil {
		t.Fatal(err)
	}

	if err := admin.adminDeleteUser(doomed.userId); err != nil {
		t.Fatal(err)
	}

	err = admin.adminDeleteUser(doomed.userId)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found: %v", err)
	}

	projects, err := owner.listProjects()
	if err != nil {
		t.Fatal(err)
	}
	if len(projects) != 1 || projects[0].Title != "Kept Project" {
		t.Fatalf("owned project should be removed %+v", projects)
	}

	fetched, err := owner.getProject(kept.Id)
	if err != nil {
		t.Fatal(err)
	}
	if len(fetched.Reviews) != 0 || len(fetched.Contributors) != 0 {
		t.Fatalf("reviews and contributor rows should be removed %+v", fetched)
	}

	fresh := env.newClient()
	err = fresh.login("doomed@mail.com", "doomed_password")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted user should not be able to login: %v", err)
	}
}

func TestAdminDeleteProject(t *testing.T) {
	env := setupTestEnv(t)

	admin := env.adminClient(t)
	owner := env.newUser(t, "owner")
	reviewer := env.newUser(t, "reviewer")

	project, err := owner.createProject(
		"Flagged Project", "",
		[]string{"https://img.example.com/1.png"},
		[]string{"go", "web"},
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := reviewer.addReview(project.Id, "spam", 1); err != nil {
		t.Fatal(err)
	}

	counts, err := admin.adminDeleteProject(project.Id)
	if err != nil {
		t.Fatal(err)
	}
	if counts.Reviews != 1 || counts.Images != 1 || counts.TagLinks != 2 {
		t.Fatalf("invalid delete counts %+v", counts)
	}

	_, err = owner.getProject(project.Id)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("project should be gone: %v", err)
	}

	_, err = admin.adminDeleteProject(project.Id)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found: %v", err)
	}
}
