package nutrition

// DishEstimate is one recognized dish with its estimated portion weight.
type DishEstimate struct {
	Name        string `json:"name"         jsonschema:"title=Dish name,description=Name of the recognized dish or food item"`
	WeightGrams int    `json:"weight_grams" jsonschema:"minimum=0,description=Estimated portion weight in grams"`
	IsEstimated bool   `json:"is_estimated" jsonschema:"description=True when the weight was inferred rather than stated by the user"`
}

// EstimateSet is the structured output of the estimation stage.
type EstimateSet struct {
	Items []DishEstimate `json:"items" jsonschema:"description=Every dish recognized in the input"`
}

// ItemNutrition is the computed breakdown for one dish.
type ItemNutrition struct {
	Name        string  `json:"name"                   jsonschema:"description=Dish name as given in the estimate"`
	WeightGrams int     `json:"weight_grams"           jsonschema:"minimum=0,description=Portion weight in grams"`
	IsEstimated bool    `json:"is_estimated"           jsonschema:"description=Carried over from the estimate"`
	Calories    int     `json:"calories"               jsonschema:"minimum=0,description=Energy in kcal for the portion"`
	ProteinG    float64 `json:"protein_g,omitempty"    jsonschema:"minimum=0,description=Protein in grams"`
	FatG        float64 `json:"fat_g,omitempty"        jsonschema:"minimum=0,description=Fat in grams"`
	CarbsG      float64 `json:"carbs_g,omitempty"      jsonschema:"minimum=0,description=Carbohydrates in grams"`
}

// Reference records the knowledge-base text that grounded a dish.
type Reference struct {
	Dish   string  `json:"dish"`
	Source string  `json:"source,omitempty"`
	Text   string  `json:"text"`
	Score  float64 `json:"score"`
}

// NutritionReport is the final structured result of a pipeline run.
// References are attached from retrieval, never produced by the model.
type NutritionReport struct {
	Items         []ItemNutrition `json:"items"            jsonschema:"description=Per-dish nutrition breakdown"`
	TotalCalories int             `json:"total_calories"   jsonschema:"minimum=0,description=Sum of calories over all items"`
	Advice        string          `json:"advice"           jsonschema:"description=Short dietary advice for the meal"`
	References    []Reference     `json:"references"       jsonschema:"-"`
}
