package sqlstore

import (
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

var (
	// RollsColumns holds the columns for the "rolls" table.
	RollsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Size: 36},
		{Name: "shop_id", Type: field.TypeString, Size: 36},
		{Name: "creator_id", Type: field.TypeString, Size: 64},
		{Name: "category", Type: field.TypeString, Size: 64, Default: ""},
		{Name: "caption", Type: field.TypeString, Size: 2048, Default: ""},
		// created_at is stored as Unix microseconds so cursor comparisons
		// behave the same on every driver.
		{Name: "created_at", Type: field.TypeInt64},
		{Name: "likes_count", Type: field.TypeInt64, Default: 0},
		{Name: "saves_count", Type: field.TypeInt64, Default: 0},
		{Name: "shares_count", Type: field.TypeInt64, Default: 0},
		{Name: "comments_count", Type: field.TypeInt64, Default: 0},
	}
	// RollsTable holds the schema information for the "rolls" table.
	RollsTable = &schema.Table{
		Name:       "rolls",
		Columns:    RollsColumns,
		PrimaryKey: []*schema.Column{RollsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "roll_created_at", Columns: []*schema.Column{RollsColumns[5]}},
			{Name: "roll_category_created_at", Columns: []*schema.Column{RollsColumns[3], RollsColumns[5]}},
		},
	}

	// ShopsColumns holds the columns for the "shops" table.
	ShopsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Size: 36},
		{Name: "owner_id", Type: field.TypeString, Size: 64},
		{Name: "name", Type: field.TypeString, Size: 255},
		{Name: "category", Type: field.TypeString, Size: 64, Default: ""},
		{Name: "country", Type: field.TypeString, Size: 8, Default: ""},
		{Name: "language", Type: field.TypeString, Size: 16, Default: ""},
		{Name: "favorites_count", Type: field.TypeInt64, Default: 0},
		{Name: "created_at", Type: field.TypeInt64},
	}
	// ShopsTable holds the schema information for the "shops" table.
	ShopsTable = &schema.Table{
		Name:       "shops",
		Columns:    ShopsColumns,
		PrimaryKey: []*schema.Column{ShopsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "shop_category_created_at", Columns: []*schema.Column{ShopsColumns[3], ShopsColumns[7]}},
		},
	}

	// AdsColumns holds the columns for the "ads" table.
	AdsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Size: 36},
		{Name: "shop_id", Type: field.TypeString, Size: 36},
		{Name: "title", Type: field.TypeString, Size: 255},
		{Name: "priority", Type: field.TypeInt, Default: 0},
		{Name: "country", Type: field.TypeString, Size: 8, Default: ""},
		{Name: "language", Type: field.TypeString, Size: 16, Default: ""},
		{Name: "created_at", Type: field.TypeInt64},
	}
	// AdsTable holds the schema information for the "ads" table.
	AdsTable = &schema.Table{
		Name:       "ads",
		Columns:    AdsColumns,
		PrimaryKey: []*schema.Column{AdsColumns[0]},
	}

	// CommentsColumns holds the columns for the "comments" table.
	CommentsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Size: 36},
		{Name: "roll_id", Type: field.TypeString, Size: 36},
		{Name: "author_id", Type: field.TypeString, Size: 64},
		{Name: "body", Type: field.TypeString, Size: 2048},
		{Name: "created_at", Type: field.TypeInt64},
	}
	// CommentsTable holds the schema information for the "comments" table.
	CommentsTable = &schema.Table{
		Name:       "comments",
		Columns:    CommentsColumns,
		PrimaryKey: []*schema.Column{CommentsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "comment_roll_id_created_at", Columns: []*schema.Column{CommentsColumns[1], CommentsColumns[4]}},
		},
	}

	RollLikesColumns = membershipColumns()
	// RollLikesTable is the membership set behind rolls.likes_count.
	RollLikesTable = membershipTable("roll_likes", RollLikesColumns)

	RollSavesColumns = membershipColumns()
	// RollSavesTable is the membership set behind rolls.saves_count.
	RollSavesTable = membershipTable("roll_saves", RollSavesColumns)

	ShopFavoritesColumns = membershipColumns()
	// ShopFavoritesTable is the membership set behind shops.favorites_count.
	ShopFavoritesTable = membershipTable("shop_favorites", ShopFavoritesColumns)

	// Tables holds all the tables in the schema.
	Tables = []*schema.Table{
		RollsTable,
		ShopsTable,
		AdsTable,
		CommentsTable,
		RollLikesTable,
		RollSavesTable,
		ShopFavoritesTable,
	}
)

func membershipColumns() []*schema.Column {
	return []*schema.Column{
		{Name: "item_id", Type: field.TypeString, Size: 36},
		{Name: "viewer_id", Type: field.TypeString, Size: 64},
		{Name: "created_at", Type: field.TypeInt64},
	}
}

// membershipTable keys the set on (item_id, viewer_id). The composite primary
// key is what makes a repeated insert by the same viewer a no-op.
func membershipTable(name string, cols []*schema.Column) *schema.Table {
	return &schema.Table{
		Name:       name,
		Columns:    cols,
		PrimaryKey: []*schema.Column{cols[0], cols[1]},
		Indexes: []*schema.Index{
			{Name: name + "_viewer_id", Columns: []*schema.Column{cols[1]}},
		},
	}
}
