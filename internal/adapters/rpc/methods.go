package rpc

import "encoding/json"

// CategoryOption is one entry of a category select input.
type CategoryOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// CategoryStack holds the selected category ID at each of the six levels.
// "0" marks an unselected level.
type CategoryStack [6]string

// GetCategoriesArgs requests the options for every level of a stack.
type GetCategoriesArgs struct {
	CategoryStack CategoryStack `json:"category_stack"`
}

// UpdateCategoriesArgs requests the options below a changed level.
type UpdateCategoriesArgs struct {
	CategoryLevel int           `json:"category_level"`
	CategoryStack CategoryStack `json:"category_stack"`
}

// CacheVersions reports whether the categories and features caches are
// current. The server replies with a two element array.
type CacheVersions struct {
	Categories bool
	Features   bool
}

// UnmarshalJSON decodes the [categories, features] array.
func (c *CacheVersions) UnmarshalJSON(data []byte) error {
	var pair []bool
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	*c = CacheVersions{}
	if len(pair) > 0 {
		c.Categories = pair[0]
	}
	if len(pair) > 1 {
		c.Features = pair[1]
	}
	return nil
}

// Current reports whether both caches are up to date.
func (c CacheVersions) Current() bool {
	return c.Categories && c.Features
}

// ProcessNewImagesArgs starts slideshow processing for an item. Progress is
// published to the realtime session named by RealtimeID and Tag.
type ProcessNewImagesArgs struct {
	ItemCode   string `json:"item_code"`
	RealtimeID string `json:"rte_id"`
	Tag        string `json:"tag"`
}

// ProcessNewImagesResult is the reply once processing has finished.
type ProcessNewImagesResult struct {
	Success bool `json:"success"`
}

// SaveWithRotationsArgs saves a slideshow document along with any image
// rotations set on its items.
type SaveWithRotationsArgs struct {
	Doc json.RawMessage `json:"doc"`
}

// ItemPlatformArgs names the item whose online selling entries are wanted.
type ItemPlatformArgs struct {
	ItemCode string `json:"item_code"`
}

// OnlineSellingItem is one platform listing entry for an item.
type OnlineSellingItem struct {
	SellingPlatform string  `json:"selling_platform"`
	SellingSubtype  string  `json:"selling_subtype"`
	SellingURL      string  `json:"selling_url"`
	Status          string  `json:"status"`
	Qty             float64 `json:"qty"`
	Price           float64 `json:"price"`
}

// SaveDocArgs saves a whole document. Doc must carry its "doctype".
type SaveDocArgs struct {
	Doc any `json:"doc"`
}

// Remote methods used by the back office forms.
var (
	GetCategories = Method[GetCategoriesArgs, [][]CategoryOption]{
		Name: "erpnext_ebay.ebay_categories.client_get_ebay_categories",
	}
	UpdateCategories = Method[UpdateCategoriesArgs, []CategoryOption]{
		Name: "erpnext_ebay.ebay_categories.client_update_ebay_categories",
	}
	CheckCacheVersions = Method[struct{}, CacheVersions]{
		Name: "erpnext_ebay.ebay_categories.check_cache_versions",
	}
	ProcessNewImages = Method[ProcessNewImagesArgs, ProcessNewImagesResult]{
		Name: "erpnext_ebay.auto_slideshow.process_new_images",
	}
	SaveWithRotations = Method[SaveWithRotationsArgs, json.RawMessage]{
		Name: "erpnext_ebay.custom_methods.website_slideshow_methods.save_with_rotations",
	}
	ItemPlatformAsync = Method[ItemPlatformArgs, []OnlineSellingItem]{
		Name: "erpnext_ebay.custom_methods.item_methods.item_platform_async",
	}
	SaveDoc = Method[SaveDocArgs, json.RawMessage]{
		Name: "frappe.client.save",
	}
)
