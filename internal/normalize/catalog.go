package normalize

import "github.com/kiwari-pos/station/internal/model"

// Product normalizes a catalog product. A missing isActive flag means active.
func Product(m map[string]any) model.Product {
	p := model.Product{
		ID:               ID(m),
		Name:             String(m["name"]),
		CategoryID:       String(first(m, "categoryId", "category")),
		BasePrice:        Decimal(first(m, "basePrice", "price")),
		AllowCustomPrice: Bool(m["allowCustomPrice"]),
		RequiresDesign:   Bool(m["requiresDesign"]),
		RequiresKitchen:  Bool(m["requiresKitchen"]),
		ImageURL:         String(first(m, "imageUrl", "image")),
		IsActive:         true,
	}
	if v, ok := m["isActive"]; ok && v != nil {
		p.IsActive = Bool(v)
	}
	if cat, ok := m["category"].(map[string]any); ok {
		p.CategoryID = ID(cat)
	}

	p.Variations = make([]model.VariationOption, 0)
	for _, v := range Variations(m["variations"]) {
		p.Variations = append(p.Variations, model.VariationOption{
			Type:            v.Type,
			Value:           v.Value,
			PriceAdjustment: v.PriceAdjustment,
		})
	}
	return p
}

// Products normalizes a product list.
func Products(v any) []model.Product {
	list := Slice(v)
	if list == nil {
		list = Slice(Map(v)["products"])
	}
	out := make([]model.Product, 0, len(list))
	for _, raw := range list {
		if m, ok := raw.(map[string]any); ok {
			out = append(out, Product(m))
		}
	}
	return out
}

// Categories normalizes a category list.
func Categories(v any) []model.Category {
	list := Slice(v)
	if list == nil {
		list = Slice(Map(v)["categories"])
	}
	out := make([]model.Category, 0, len(list))
	for _, raw := range list {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, model.Category{
			ID:       ID(m),
			Name:     String(m["name"]),
			ParentID: String(first(m, "parentId", "parent")),
		})
	}
	return out
}
