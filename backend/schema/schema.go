package schema

import (
	"time"

	"github.com/google/uuid"
)

type Profile struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Username string `gorm:"unique;size:50;not null"`
	Email    string `gorm:"unique;size:254;not null"`
	FullName string `gorm:"size:100;not null"`

	Bio    *string
	Avatar *string

	// Only populated by the basic identity provider, keycloak manages its own credentials.
	Password []byte

	IsAdmin bool `gorm:"not null;default:false"`

	CreatedAt time.Time

	Projects []Project `gorm:"foreignKey:OwnerId"`
	Reviews  []Review  `gorm:"foreignKey:UserId"`
}

type Project struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Title       string `gorm:"unique;size:100;not null"`
	Description string `gorm:"not null"`

	OwnerId uuid.UUID `gorm:"type:uuid;not null"`
	Owner   *Profile  `gorm:"foreignKey:OwnerId"`

	CreatedAt time.Time

	Images       []ProjectImage `gorm:"constraint:OnDelete:CASCADE"`
	Tags         []Tag          `gorm:"many2many:project_tags;"`
	Contributors []Contributor  `gorm:"constraint:OnDelete:CASCADE"`
	Reviews      []Review       `gorm:"constraint:OnDelete:CASCADE"`
}

type ProjectImage struct {
	Id        uuid.UUID `gorm:"type:uuid;primaryKey"`
	ProjectId uuid.UUID `gorm:"type:uuid;not null;index"`
	ImageLink string    `gorm:"not null"`
}

type Tag struct {
	Id      uuid.UUID `gorm:"type:uuid;primaryKey"`
	TagName string    `gorm:"unique;size:50;not null"`

	Projects []Project `gorm:"many2many:project_tags;"`
}

type Contributor struct {
	ProjectId uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserId    uuid.UUID `gorm:"type:uuid;primaryKey"`

	Status bool `gorm:"not null;default:true"`

	Project *Project `gorm:"constraint:OnDelete:CASCADE"`
	User    *Profile `gorm:"foreignKey:UserId;constraint:OnDelete:CASCADE"`
}

type Review struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	ProjectId uuid.UUID `gorm:"type:uuid;not null;index:idx_review_project_user,unique"`
	UserId    uuid.UUID `gorm:"type:uuid;not null;index:idx_review_project_user,unique"`

	Review string `gorm:"not null"`
	Rating int    `gorm:"not null"`

	CreatedAt time.Time

	User *Profile `gorm:"foreignKey:UserId;constraint:OnDelete:CASCADE"`
}
