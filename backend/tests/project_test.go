package tests

import (
	"errors"
	"slices"
	"testing"
)

func TestCreateAndGetProject(t *testing.T) {
	env := setupTestEnv(t)

	client := env.newUser(t, "owner")

	created, err := client.createProject(
		"My Portfolio Site", "a portfolio website",
		[]string{"https://img.example.com/1.png", "https://img.example.com/2.png"},
		[]string{"go", "web"},
	)
	if err != nil {
		t.Fatal(err)
	}
	if created.Title != "My Portfolio Site" || created.OwnerId != client.userId {
		t.Fatalf("invalid project %+v", created)
	}
	if len(created.Images) != 2 || len(created.Tags) != 2 {
		t.Fatalf("images/tags not created %+v", created)
	}

	fetched, err := client.getProject(created.Id)
	if err != nil {
		t.Fatal(err)
	}
	if fetched.Title != created.Title || len(fetched.Images) != 2 {
		t.Fatalf("invalid fetched project %+v", fetched)
	}

	_, err = client.getProject("00000000-0000-0000-0000-000000000000")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found: %v", err)
	}

	_, err = client.createProject("My Portfolio Site", "duplicate title", nil, nil)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate title should conflict: %v", err)
	}

	unauthed := env.newClient()
	_, err = unauthed.getProject(created.Id)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("project routes require auth: %v", err)
	}
}

func TestListProjects(t *testing.T) {
	env := setupTestEnv(t)

	a := env.newUser(t, "usera")
	b := env.newUser(t, "userb")

	for _, title := range []string{"Project One", "Project Two"} {
		if _, err := a.createProject(title, "", nil, nil); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := b.createProject("Project Three", "", nil, nil); err != nil {
		t.Fatal(err)
	}

	all, err := a.listProjects()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 projects, got %d", len(all))
	}

	mine, err := a.myProjects()
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 2 {
		t.Fatalf("expected 2 projects, got %d", len(mine))
	}
	for _, project := range mine {
		if project.OwnerId != a.userId {
			t.Fatalf("project %v not owned by user", project.Id)
		}
	}
}

func TestUpdateProject(t *testing.T) {
	env := setupTestEnv(t)

	owner := env.newUser(t, "owner")
	other := env.newUser(t, "other")

	created, err := owner.createProject(
		"Initial Title", "initial description",
		[]string{"https://img.example.com/1.png"},
		[]string{"go"},
	)
	if err != nil {
		t.Fatal(err)
	}

	// Fields omitted from the payload are untouched.
	updated, err := owner.updateProject(created.Id, map[string]interface{}{
		"description": "new description",
	})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Title != "Initial Title" || updated.Description != "new description" {
		t.Fatalf("invalid update result %+v", updated)
	}
	if len(updated.Images) != 1 || len(updated.Tags) != 1 {
		t.Fatalf("images/tags should be untouched %+v", updated)
	}

	// A present list replaces the prior associations, an empty one clears them.
	updated, err = owner.updateProject(created.Id, map[string]interface{}{
		"images": []string{},
		"tags":   []string{"go", "backend", "api"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(updated.Images) != 0 {
		t.Fatalf("images should be cleared %+v", updated)
	}
	if len(updated.Tags) != 3 {
		t.Fatalf("tags should be replaced %+v", updated)
	}

	_, err = other.updateProject(created.Id, map[string]interface{}{"title": "hijacked"})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("only the owner can update: %v", err)
	}

	second, err := other.createProject("Other Project", "", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = other.updateProject(second.Id, map[string]interface{}{"title": "Initial Title"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("update to a taken title should conflict: %v", err)
	}
}

func TestDeleteProject(t *testing.T) {
	env := setupTestEnv(t)

	owner := env.newUser(t, "owner")
	reviewer := env.newUser(t, "reviewer")
	contributor := env.newUser(t, "contributor")

	created, err := owner.createProject(
		"Doomed Project", "",
		[]string{"https://img.example.com/1.png", "https://img.example.com/2.png"},
		[]string{"go", "web"},
	)
	if err != nil {
		t.Fatal(err)
	}

	if err := owner.addContributor(created.Id, "contributor"); err != nil {
		t.Fatal(err)
	}
	if err := reviewer.addReview(created.Id, "nice", 5); err != nil {
		t.Fatal(err)
	}

	_, err = reviewer.deleteProject(created.Id)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("only the owner can delete: %v", err)
	}

	counts, err := owner.deleteProject(created.Id)
	if err != nil {
		t.Fatal(err)
	}
	if counts.Reviews != 1 || counts.Contributors != 1 || counts.Images != 2 || counts.TagLinks != 2 {
		t.Fatalf("invalid delete counts %+v", counts)
	}

	_, err = owner.getProject(created.Id)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted project should be gone: %v", err)
	}

	if _, err := contributor.myProjects(); err != nil {
		t.Fatal(err)
	}
}

func TestContributors(t *testing.T) {
	env := setupTestEnv(t)

	owner := env.newUser(t, "owner")
	helper := env.newUser(t, "helper")

	created, err := owner.createProject("Team Project", "", nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	err = helper.addContributor(created.Id, "owner")
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("only the owner can add contributors: %v", err)
	}

	err = owner.addContributor(created.Id, "nobody")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown username should 404: %v", err)
	}

	err = owner.addContributor(created.Id, "owner")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("owner cannot be a contributor: %v", err)
	}

	if err := owner.addContributor(created.Id, "helper"); err != nil {
		t.Fatal(err)
	}
	err = owner.addContributor(created.Id, "helper")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate contributor should conflict: %v", err)
	}

	fetched, err := owner.getProject(created.Id)
	if err != nil {
		t.Fatal(err)
	}
	if len(fetched.Contributors) != 1 || fetched.Contributors[0].Username != "helper" {
		t.Fatalf("invalid contributors %+v", fetched.Contributors)
	}

	err = owner.removeContributor(created.Id, helper.userId)
	if err != nil {
		t.Fatal(err)
	}
	err = owner.removeContributor(created.Id, helper.userId)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("removing a missing contributor should 404: %v", err)
	}
}

func TestReviews(t *testing.T) {
	env := setupTestEnv(t)

	owner := env.newUser(t, "owner")
	alice := env.newUser(t, "alice")
	bob := env.newUser(t, "bob")

	created, err := owner.createProject("Reviewed Project", "", nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	err = alice.addReview(created.Id, "meh", 0)
	if !errors.Is(err, ErrBadRequest) {
		t.Fatalf("rating must be between 1 and 5: %v", err)
	}
	err = alice.addReview(created.Id, "amazing", 6)
	if !errors.Is(err, ErrBadRequest) {
		t.Fatalf("rating must be between 1 and 5: %v", err)
	}

	err = owner.addReview(created.Id, "my own project rocks", 5)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("owners cannot review their own project: %v", err)
	}

	if err := alice.addReview(created.Id, "good", 4); err != nil {
		t.Fatal(err)
	}
	err = alice.addReview(created.Id, "changed my mind", 1)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("one review per user per project: %v", err)
	}

	if err := bob.addReview(created.Id, "ok", 2); err != nil {
		t.Fatal(err)
	}

	fetched, err := owner.getProject(created.Id)
	if err != nil {
		t.Fatal(err)
	}
	if len(fetched.Reviews) != 2 {
		t.Fatalf("expected 2 reviews, got %d", len(fetched.Reviews))
	}
	if fetched.AvgRating != 3.0 {
		t.Fatalf("expected avg rating 3.0, got %v", fetched.AvgRating)
	}

	if err := bob.removeReview(created.Id); err != nil {
		t.Fatal(err)
	}
	err = bob.removeReview(created.Id)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("removing a missing review should 404: %v", err)
	}

	fetched, err = owner.getProject(created.Id)
	if err != nil {
		t.Fatal(err)
	}
	if len(fetched.Reviews) != 1 || fetched.Reviews[0].Username != "alice" {
		t.Fatalf("invalid reviews after removal %+v", fetched.Reviews)
	}
}

func TestTags(t *testing.T) {
	env := setupTestEnv(t)

	client := env.newUser(t, "owner")

	if _, err := client.createProject("First", "", nil, []string{"go", "web"}); err != nil {
		t.Fatal(err)
	}
	if _, err := client.createProject("Second", "", nil, []string{"go", "api"}); err != nil {
		t.Fatal(err)
	}

	tags, err := client.listTags()
	if err != nil {
		t.Fatal(err)
	}

	names := make([]string, 0, len(tags))
	for _, tag := range tags {
		names = append(names, tag.TagName)
	}
	if !slices.Equal(names, []string{"api", "go", "web"}) {
		t.Fatalf("invalid tags %v", names)
	}
}
