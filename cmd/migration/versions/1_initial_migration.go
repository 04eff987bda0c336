package versions

import (
	"log"
	"revx_backend/backend/schema"

	"gorm.io/gorm"
)

/*
 * The previous backend managed its schema with hand written SQL, so index and
 * constraint names do not match what gorm generates. For simplicity these
 * migrations just delete the old indexes/constraints and let gorm recreate
 * them.
 */
func dropIndexes(model interface{}, txn *gorm.DB, indexes ...string) error {
	for _, idx := range indexes {
		if err := txn.Migrator().DropIndex(model, idx); err != nil {
			return err
		}
	}
	return nil
}

func dropConstraints(model interface{}, txn *gorm.DB, constraints ...string) error {
	for _, constraint := range constraints {
		if err := txn.Migrator().DropConstraint(model, constraint); err != nil {
			return err
		}
	}
	return nil
}

func migrateProfile(txn *gorm.DB) error {
	log.Println("migrating table 'profiles'")

	type Profile struct{}

	if err := dropIndexes(&Profile{}, txn, "profiles_username_idx"); err != nil {
		return err
	}

	if err := dropConstraints(&Profile{}, txn, "profiles_username_key", "profiles_email_key", "profiles_id_fkey"); err != nil {
		return err
	}

	log.Println("table 'profiles' migration complete")

	return nil
}

func migrateProject(txn *gorm.DB) error {
	log.Println("migrating table 'projects'")

	type Project struct{}

	if err := dropIndexes(&Project{}, txn, "projects_owner_idx"); err != nil {
		return err
	}

	if err := dropConstraints(&Project{}, txn, "projects_title_key", "projects_owner_id_fkey"); err != nil {
		return err
	}

	log.Println("table 'projects' migration complete")

	return nil
}

func migrateProjectImages(txn *gorm.DB) error {
	log.Println("migrating table 'project_images'")

	type ProjectImage struct{}

	if err := dropConstraints(&ProjectImage{}, txn, "project_images_project_id_fkey"); err != nil {
		return err
	}

	log.Println("table 'project_images' migration complete")

	return nil
}

func migrateTags(txn *gorm.DB) error {
	log.Println("migrating tables 'tags' and 'project_tags'")

	type Tag struct{}
	if err := dropConstraints(&Tag{}, txn, "tags_tag_name_key"); err != nil {
		return err
	}

	type ProjectTag struct{}
	err := dropConstraints(&ProjectTag{}, txn, "project_tags_project_id_fkey", "project_tags_tag_id_fkey")
	if err != nil {
		return err
	}

	log.Println("tables 'tags' and 'project_tags' migration complete")

	return nil
}

func migrateContributors(txn *gorm.DB) error {
	log.Println("migrating table 'contributors'")

	type Contributor struct{}

	err := dropConstraints(&Contributor{}, txn, "contributors_project_id_fkey", "contributors_user_id_fkey")
	if err != nil {
		return err
	}

	log.Println("table 'contributors' migration complete")

	return nil
}

// The previous backend enforced one review per user per project in application
// code only, so duplicates can exist. The oldest review is kept and the rest
// are removed before the unique index is created.
func dedupeReviews(txn *gorm.DB) error {
	return txn.Exec(`
		DELETE FROM reviews WHERE id NOT IN (
			SELECT id FROM (
				SELECT DISTINCT ON (project_id, user_id) id
				FROM reviews ORDER BY project_id, user_id, created_at ASC
			) AS keep
		)`).Error
}

func migrateReviews(txn *gorm.DB) error {
	log.Println("migrating table 'reviews'")

	type Review struct{}

	if err := dedupeReviews(txn); err != nil {
		return err
	}

	err := dropConstraints(&Review{}, txn, "reviews_project_id_fkey", "reviews_user_id_fkey")
	if err != nil {
		return err
	}

	log.Println("table 'reviews' migration complete")

	return nil
}

func Migration_1_initial_migration(txn *gorm.DB) error {
	log.Println("performing initial migration to new backend schema")

	if err := migrateProfile(txn); err != nil {
		return err
	}

	if err := migrateProject(txn); err != nil {
		return err
	}

	if err := migrateProjectImages(txn); err != nil {
		return err
	}

	if err := migrateTags(txn); err != nil {
		return err
	}

	if err := migrateContributors(txn); err != nil {
		return err
	}

	if err := migrateReviews(txn); err != nil {
		return err
	}

	err := txn.Migrator().AutoMigrate(
		&schema.Profile{}, &schema.Project{}, &schema.ProjectImage{},
		&schema.Tag{}, &schema.Contributor{}, &schema.Review{},
	)
	if err != nil {
		return err
	}

	log.Println("initial migration to new backend schema complete")

	return nil
}
